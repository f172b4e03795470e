package account

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUnlockFreshFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")
	s := New(path)
	require.NoError(t, s.Unlock("a passphrase"))
	assert.Empty(t, s.List())
}

func TestStorePutPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")

	s := New(path)
	require.NoError(t, s.Unlock("a passphrase"))
	require.NoError(t, s.Put(Account{ID: "acc-1", Username: "commander", World: "world-3", Password: "hunter2"}))

	reopened := New(path)
	require.NoError(t, reopened.Unlock("a passphrase"))

	got, ok := reopened.Get("acc-1")
	require.True(t, ok)
	assert.Equal(t, "commander", got.Username)
	assert.Equal(t, "hunter2", got.Password)
}

func TestStoreUnlockWrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")

	s := New(path)
	require.NoError(t, s.Unlock("right passphrase"))
	require.NoError(t, s.Put(Account{ID: "acc-1", Username: "commander", World: "world-3"}))

	other := New(path)
	err := other.Unlock("wrong passphrase")
	assert.Error(t, err)
}

func TestStorePutReplacesExistingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")
	s := New(path)
	require.NoError(t, s.Unlock("passphrase"))

	require.NoError(t, s.Put(Account{ID: "acc-1", Username: "first"}))
	require.NoError(t, s.Put(Account{ID: "acc-1", Username: "second"}))

	assert.Len(t, s.List(), 1)
	got, ok := s.Get("acc-1")
	require.True(t, ok)
	assert.Equal(t, "second", got.Username)
}

func TestStoreRemoveDeletesAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")
	s := New(path)
	require.NoError(t, s.Unlock("passphrase"))

	require.NoError(t, s.Put(Account{ID: "acc-1", Username: "alpha"}))
	require.NoError(t, s.Put(Account{ID: "acc-2", Username: "bravo"}))
	require.NoError(t, s.Remove("acc-1"))

	assert.Len(t, s.List(), 1)
	_, ok := s.Get("acc-1")
	assert.False(t, ok)
	_, ok = s.Get("acc-2")
	assert.True(t, ok)
}
