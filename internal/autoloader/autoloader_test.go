package autoloader

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/processregistry"
)

func TestSaveListAndToggle(t *testing.T) {
	store := New(t.TempDir(), "outpost", "s59-en", "zeno")

	entry, err := store.Save("Transport Manager", 5, "ship wood every hour", []string{"1", "y"}, true)
	require.NoError(t, err)
	assert.True(t, entry.Enabled)

	require.NoError(t, store.SetEnabled(entry.ID, false))
	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)
}

func TestLaunchEnabledSkipsHealthyAndSpawnsMissing(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, "outpost", "s59-en", "zeno")
	registry := processregistry.New(dir, "outpost", "s59-en", "zeno")

	healthy, err := store.Save("Status", 2, "read-only status", nil, true)
	require.NoError(t, err)
	missing, err := store.Save("Transport Manager", 5, "ships wood", []string{"1"}, true)
	require.NoError(t, err)
	disabled, err := store.Save("Spy Tool", 9, "unused", nil, false)
	require.NoError(t, err)
	_ = disabled

	require.NoError(t, registry.Register(processregistry.WorkerRecord{
		PID: int32(os.Getpid()), Label: "status-worker", ModuleName: healthy.ModuleName, LastHeartbeat: time.Now(),
	}))

	var dispatched []string
	result, err := store.LaunchEnabled(registry, 10*time.Minute, func(moduleName string, inputs []string) error {
		dispatched = append(dispatched, moduleName)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{missing.ModuleName}, dispatched)
	require.Len(t, result.Launched, 1)
	assert.Equal(t, missing.ID, result.Launched[0].ID)
}

func TestLaunchEnabledWarnsOnFrozenWithoutKilling(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, "outpost", "s59-en", "zeno")
	registry := processregistry.New(dir, "outpost", "s59-en", "zeno")

	entry, err := store.Save("Transport Manager", 5, "ships wood", []string{"1"}, true)
	require.NoError(t, err)

	require.NoError(t, registry.Register(processregistry.WorkerRecord{
		PID: int32(os.Getpid()), Label: "frozen-worker", ModuleName: entry.ModuleName,
		LastHeartbeat: time.Now().Add(-15 * time.Minute),
	}))

	var dispatched []string
	result, err := store.LaunchEnabled(registry, 10*time.Minute, func(moduleName string, inputs []string) error {
		dispatched = append(dispatched, moduleName)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{entry.ModuleName}, dispatched)
	require.Len(t, result.Frozen, 1)
	assert.EqualValues(t, os.Getpid(), result.Frozen[0].PID)
}
