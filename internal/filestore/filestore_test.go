package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesFileAndDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"ok":true}`), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomicLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, WriteAtomic(path, []byte("v1"), 0o600))
	require.NoError(t, WriteAtomic(path, []byte("v2"), 0o600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}

func TestReadOrDefaultMissingFile(t *testing.T) {
	dir := t.TempDir()
	data, ok, err := ReadOrDefault(filepath.Join(dir, "missing.json"), []byte("fallback"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []byte("fallback"), data)
}

func TestUpdateAppliesMutationAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.txt")

	for i := 0; i < 3; i++ {
		err := Update(path, func(current []byte, existed bool) ([]byte, error) {
			if !existed {
				return []byte("1"), nil
			}
			return append(current, '+'), nil
		})
		require.NoError(t, err)
	}

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1++", string(got))
}

func TestUpdatePropagatesMutateError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	sentinel := errors.New("mutate failed")

	err := Update(path, func(current []byte, existed bool) ([]byte, error) {
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
