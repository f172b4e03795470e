package jobsupervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/criticalerrors"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/inputrecorder"
	"github.com/outpostctl/outpost/internal/processregistry"
)

func TestHandoffRoundTrip(t *testing.T) {
	dir := t.TempDir()
	session, err := gamesession.New(gamesession.Config{BaseURL: "https://example.invalid/"})
	require.NoError(t, err)

	path := WritePath(dir)
	original := Handoff{
		ModuleName: "transport",
		Label:      "transport-1",
		AccountKey: "acct-1",
		Session:    session.Serialize(),
		Inputs:     []string{"100", "200"},
	}
	require.NoError(t, Write(path, original))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, original.ModuleName, got.ModuleName)
	assert.Equal(t, original.Label, got.Label)
	assert.Equal(t, original.Inputs, got.Inputs)
}

func TestReadMissingHandoffErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestEnterBackgroundModeRegistersAndWiresHeartbeat(t *testing.T) {
	dir := t.TempDir()
	registry := processregistry.New(dir, "outpost", "s1-en", "zeno")
	session, err := gamesession.New(gamesession.Config{BaseURL: "https://example.invalid/"})
	require.NoError(t, err)

	require.NoError(t, EnterBackgroundMode(session, registry, "transport-1", "transport"))
	assert.False(t, session.IsParent())

	session.SetStatus("shipping")

	entries, err := registry.Refresh()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shipping", entries[0].Status)
}

func TestKillRemovesFromRegistry(t *testing.T) {
	dir := t.TempDir()
	registry := processregistry.New(dir, "outpost", "s1-en", "zeno")
	// A PID that (almost certainly) names no running process: Kill must
	// still drop the registry entry even though the signal itself fails.
	const fakePID = 999999
	require.NoError(t, registry.Register(processregistry.WorkerRecord{
		PID: fakePID, Label: "l", ModuleName: "status", LastHeartbeat: time.Now(),
	}))

	sup := New("outpost", dir, registry, criticalerrors.New(dir, "outpost", "s1-en", "zeno"), logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, sup.Kill(fakePID))

	entries, err := registry.Refresh()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFlushAndReadInputsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	handoffPath := WritePath(dir)

	rec := inputrecorder.NewRecorder()
	rec.Record("1")
	rec.Record("y")
	require.NoError(t, FlushInputs(rec, handoffPath))

	answers, err := ReadFlushedInputs(handoffPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "y"}, answers)
}
