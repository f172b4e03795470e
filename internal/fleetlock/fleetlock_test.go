package fleetlock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndReleaseRoundTrips(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "acc-1", "fast", 10*time.Minute, 10*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background(), time.Second))

	raw, err := os.ReadFile(filepath.Join(dir, "fleetlock-acc-1-fast.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "acc-1")

	require.NoError(t, l.Release())
	_, err = os.Stat(filepath.Join(dir, "fleetlock-acc-1-fast.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireEvictsStaleHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetlock-acc-1-fast.json")

	stale := Payload{PID: 999999, AcquiredAt: time.Now().Add(-time.Hour), ShipClass: "fast", AccountKey: "acc-1"}
	raw, err := marshalForTest(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	l := New(dir, "acc-1", "fast", 10*time.Minute, 10*time.Millisecond)
	err = l.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquireTimesOutAgainstLiveHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetlock-acc-1-fast.json")

	live := Payload{PID: os.Getpid(), AcquiredAt: time.Now(), ShipClass: "fast", AccountKey: "acc-1"}
	raw, err := marshalForTest(live)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	l := New(dir, "acc-1", "fast", 10*time.Minute, 5*time.Millisecond)
	err = l.Acquire(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReleaseNoOpWhenNotHeld(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "acc-1", "fast", 10*time.Minute, 10*time.Millisecond)
	assert.NoError(t, l.Release())
}

func marshalForTest(p Payload) ([]byte, error) {
	return json.Marshal(p)
}
