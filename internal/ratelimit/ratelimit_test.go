package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAcquireEnforcesLowerBound is the rate-limit property from spec.md §8.1
// and the concrete scenario in §8 scenario 3: ten calls with a 300ms
// min_interval must take at least 2700ms.
func TestAcquireEnforcesLowerBound(t *testing.T) {
	l := New(300 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2700*time.Millisecond)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireAllowsImmediateFirstCall(t *testing.T) {
	l := New(300 * time.Millisecond)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
