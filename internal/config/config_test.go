package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("OUTPOST_TEST_STR", "  hello  ")
	assert.Equal(t, "hello", GetEnv("OUTPOST_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("OUTPOST_TEST_MISSING", "fallback"))

	t.Setenv("OUTPOST_TEST_BOOL", "yes")
	assert.True(t, GetEnvBool("OUTPOST_TEST_BOOL", false))
	assert.True(t, GetEnvBool("OUTPOST_TEST_BOOL_MISSING", true))

	t.Setenv("OUTPOST_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("OUTPOST_TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("OUTPOST_TEST_INT_MISSING", 7))

	t.Setenv("OUTPOST_TEST_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("OUTPOST_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("OUTPOST_TEST_DURATION_MISSING", time.Second))
}

func TestPassphraseSourcePriority(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "passphrase")
	require.NoError(t, os.WriteFile(secretPath, []byte("from-file\n"), 0o600))

	t.Setenv("OUTPOST_PASSPHRASE", "from-env")

	pass, ok := PassphraseSource(secretPath, "OUTPOST_PASSPHRASE")
	require.True(t, ok)
	assert.Equal(t, "from-file", pass)

	pass, ok = PassphraseSource(filepath.Join(dir, "missing"), "OUTPOST_PASSPHRASE")
	require.True(t, ok)
	assert.Equal(t, "from-env", pass)

	_, ok = PassphraseSource(filepath.Join(dir, "missing"), "OUTPOST_PASSPHRASE_MISSING")
	assert.False(t, ok)
}

func TestDefaultKnobs(t *testing.T) {
	k := DefaultKnobs()
	assert.Equal(t, 300*time.Millisecond, k.RateLimitInterval)
	assert.Equal(t, 10*time.Minute, k.FleetLockStaleThreshold)
	assert.Equal(t, 3, k.LoginMaxAttempts)
}

func TestLoadKnobsOverridesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knobs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limit_interval = "500ms"
login_max_attempts = 5
`), 0o600))

	k := LoadKnobs(path)
	assert.Equal(t, 500*time.Millisecond, k.RateLimitInterval)
	assert.Equal(t, 5, k.LoginMaxAttempts)
	// Untouched fields keep their default.
	assert.Equal(t, DefaultKnobs().MaintenanceBackoff, k.MaintenanceBackoff)

	assert.Equal(t, DefaultKnobs(), LoadKnobs(filepath.Join(dir, "missing.toml")))
	assert.Equal(t, DefaultKnobs(), LoadKnobs(""))
}
