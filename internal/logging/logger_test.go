package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsFields(t *testing.T) {
	l := New("session", "debug", "json")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	ctx := WithAccount(context.Background(), "acct-1")
	ctx = WithWorld(ctx, "59-en")

	l.WithContext(ctx).Info("hello")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "acct-1", decoded["account"])
	assert.Equal(t, "59-en", decoded["world"])
	assert.Equal(t, "session", decoded["component"])
	assert.Equal(t, "hello", decoded["message"])
}

func TestNewRequestIDIsUnique(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestWithErrorAttachesError(t *testing.T) {
	l := New("transport", "info", "json")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithError(assert.AnError).Error("dispatch failed")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, assert.AnError.Error(), decoded["error"])
	assert.Equal(t, "transport", decoded["component"])
}
