package resilience

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrecoverableRoundTrips(t *testing.T) {
	original := errors.New("boom")
	wrapped := Unrecoverable(original)

	unwrapped, ok := AsUnrecoverable(wrapped)
	assert.True(t, ok)
	assert.ErrorIs(t, unwrapped, original)
}

func TestAsUnrecoverableFalseForPlainError(t *testing.T) {
	_, ok := AsUnrecoverable(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnrecoverableNilPassesThrough(t *testing.T) {
	assert.Nil(t, Unrecoverable(nil))
}
