package processregistry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshDropsDeadAndAliasedPIDs(t *testing.T) {
	reg := New(t.TempDir(), "outpost", "s59-en", "zeno")

	require.NoError(t, reg.Register(WorkerRecord{PID: int32(os.Getpid()), Label: "me", StartedAt: time.Now()}))
	require.NoError(t, reg.Register(WorkerRecord{PID: 999999, Label: "long dead", StartedAt: time.Now()}))

	live, err := reg.Refresh()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.EqualValues(t, os.Getpid(), live[0].PID)
}

func TestUpdateStatusRefreshesHeartbeat(t *testing.T) {
	reg := New(t.TempDir(), "outpost", "s59-en", "zeno")
	pid := int32(os.Getpid())
	require.NoError(t, reg.Register(WorkerRecord{PID: pid, Label: "transport"}))

	require.NoError(t, reg.UpdateStatus(pid, "shipping"))

	live, err := reg.Refresh()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "shipping", live[0].Status)
	assert.WithinDuration(t, time.Now(), live[0].LastHeartbeat, 5*time.Second)
}

func TestIsFrozenHonorsThreshold(t *testing.T) {
	fresh := WorkerRecord{LastHeartbeat: time.Now()}
	stale := WorkerRecord{LastHeartbeat: time.Now().Add(-12 * time.Minute)}

	assert.False(t, IsFrozen(fresh, 10*time.Minute))
	assert.True(t, IsFrozen(stale, 10*time.Minute))
}

func TestRegistryFilePathSanitizesSeparators(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir, "outpost", "s59/en", "a/b")
	require.NoError(t, reg.Register(WorkerRecord{PID: int32(os.Getpid())}))

	matches, err := filepath.Glob(filepath.Join(dir, ".outpost_processes_s59_en_a_b.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
