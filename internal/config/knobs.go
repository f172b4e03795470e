package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Knobs is the process-wide immutable tuning record. A single Knobs value is
// built once at startup and passed explicitly into every component that needs
// a timeout or threshold, rather than each component reading package-level
// globals (Design Note 9: "re-architect as per-session owned state structs...
// allow a process-wide immutable configuration record for knobs").
type Knobs struct {
	// RateLimitInterval is the minimum interval between outbound HTTP calls per session.
	RateLimitInterval time.Duration

	// NetworkBackoff is the sleep after a transient network failure.
	NetworkBackoff time.Duration

	// MaintenanceBackoff is the sleep after detecting server maintenance.
	MaintenanceBackoff time.Duration

	// HealthPingInterval is how often the HealthPinger probes the session.
	HealthPingInterval time.Duration

	// FleetLockStaleThreshold is how old an acquired_at may be before a lock
	// file is considered abandoned and evicted.
	FleetLockStaleThreshold time.Duration

	// FleetLockPollInterval is how often acquire() retries against a held lock.
	FleetLockPollInterval time.Duration

	// FrozenWorkerThreshold is how stale a heartbeat may be before a worker
	// is considered frozen.
	FrozenWorkerThreshold time.Duration

	// LoginMaxAttempts bounds LoginStateMachine retries.
	LoginMaxAttempts int

	// CaptchaMaxAttempts bounds the captcha-solving subphase.
	CaptchaMaxAttempts int

	// FleetLockAcquireRetries bounds TransportEngine's lock-acquire retries.
	FleetLockAcquireRetries int

	// FleetLockAcquireTimeout is the per-attempt timeout for each retry.
	FleetLockAcquireTimeout time.Duration

	// MaxRouteWait caps cumulative waiting for ship availability on one route.
	MaxRouteWait time.Duration

	// MaxUnexpectedResponses bounds TransportEngine's per-route retry budget.
	MaxUnexpectedResponses int

	// RingBufferSize is the GameSession diagnostic ring buffer capacity.
	RingBufferSize int

	// SupervisorMaxRestarts bounds a worker's consecutive crash-restart budget.
	SupervisorMaxRestarts int

	// SupervisorBackoffBase/Cap bound the exponential restart backoff.
	SupervisorBackoffBase time.Duration
	SupervisorBackoffCap  time.Duration

	// WatchdogSchedule is the robfig/cron expression driving `outpost watch`.
	WatchdogSchedule string
}

// DefaultKnobs matches the constants spec.md names throughout §4 and §8.
func DefaultKnobs() Knobs {
	return Knobs{
		RateLimitInterval:       300 * time.Millisecond,
		NetworkBackoff:          5 * time.Minute,
		MaintenanceBackoff:      10 * time.Minute,
		HealthPingInterval:      3 * time.Minute,
		FleetLockStaleThreshold: 10 * time.Minute,
		FleetLockPollInterval:   5 * time.Second,
		FrozenWorkerThreshold:   10 * time.Minute,
		LoginMaxAttempts:        3,
		CaptchaMaxAttempts:      5,
		FleetLockAcquireRetries: 3,
		FleetLockAcquireTimeout: 5 * time.Minute,
		MaxRouteWait:            2 * time.Hour,
		MaxUnexpectedResponses:  20,
		RingBufferSize:          5,
		SupervisorMaxRestarts:   8,
		SupervisorBackoffBase:   5 * time.Second,
		SupervisorBackoffCap:    10 * time.Minute,
		WatchdogSchedule:        "@every 1m",
	}
}

// knobsFile is the on-disk TOML shape. Durations are plain strings
// ("300ms", "10m") parsed with time.ParseDuration rather than typed as
// time.Duration directly, since TOML has no native duration type and a
// struct tag alone won't make BurntSushi/toml coerce a string into an
// int64-backed Duration field.
type knobsFile struct {
	RateLimitInterval       string `toml:"rate_limit_interval"`
	NetworkBackoff          string `toml:"network_backoff"`
	MaintenanceBackoff      string `toml:"maintenance_backoff"`
	HealthPingInterval      string `toml:"health_ping_interval"`
	FleetLockStaleThreshold string `toml:"fleet_lock_stale_threshold"`
	FleetLockPollInterval   string `toml:"fleet_lock_poll_interval"`
	FrozenWorkerThreshold   string `toml:"frozen_worker_threshold"`
	LoginMaxAttempts        int    `toml:"login_max_attempts"`
	CaptchaMaxAttempts      int    `toml:"captcha_max_attempts"`
	FleetLockAcquireRetries int    `toml:"fleet_lock_acquire_retries"`
	FleetLockAcquireTimeout string `toml:"fleet_lock_acquire_timeout"`
	MaxRouteWait            string `toml:"max_route_wait"`
	MaxUnexpectedResponses  int    `toml:"max_unexpected_responses"`
	RingBufferSize          int    `toml:"ring_buffer_size"`
	SupervisorMaxRestarts   int    `toml:"supervisor_max_restarts"`
	SupervisorBackoffBase   string `toml:"supervisor_backoff_base"`
	SupervisorBackoffCap    string `toml:"supervisor_backoff_cap"`
	WatchdogSchedule        string `toml:"watchdog_schedule"`
}

// LoadKnobs reads overrides from a TOML file at path, falling back to
// DefaultKnobs for any field the file doesn't set and for any I/O error
// (a missing knobs file is not fatal — it just means "use the defaults").
func LoadKnobs(path string) Knobs {
	knobs := DefaultKnobs()
	if path == "" {
		return knobs
	}
	if _, err := os.Stat(path); err != nil {
		return knobs
	}
	var file knobsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return knobs
	}
	applyOverrides(&knobs, file)
	return knobs
}

func applyOverrides(base *Knobs, file knobsFile) {
	setDuration(&base.RateLimitInterval, file.RateLimitInterval)
	setDuration(&base.NetworkBackoff, file.NetworkBackoff)
	setDuration(&base.MaintenanceBackoff, file.MaintenanceBackoff)
	setDuration(&base.HealthPingInterval, file.HealthPingInterval)
	setDuration(&base.FleetLockStaleThreshold, file.FleetLockStaleThreshold)
	setDuration(&base.FleetLockPollInterval, file.FleetLockPollInterval)
	setDuration(&base.FrozenWorkerThreshold, file.FrozenWorkerThreshold)
	setDuration(&base.FleetLockAcquireTimeout, file.FleetLockAcquireTimeout)
	setDuration(&base.MaxRouteWait, file.MaxRouteWait)
	setDuration(&base.SupervisorBackoffBase, file.SupervisorBackoffBase)
	setDuration(&base.SupervisorBackoffCap, file.SupervisorBackoffCap)

	if file.LoginMaxAttempts > 0 {
		base.LoginMaxAttempts = file.LoginMaxAttempts
	}
	if file.CaptchaMaxAttempts > 0 {
		base.CaptchaMaxAttempts = file.CaptchaMaxAttempts
	}
	if file.FleetLockAcquireRetries > 0 {
		base.FleetLockAcquireRetries = file.FleetLockAcquireRetries
	}
	if file.MaxUnexpectedResponses > 0 {
		base.MaxUnexpectedResponses = file.MaxUnexpectedResponses
	}
	if file.RingBufferSize > 0 {
		base.RingBufferSize = file.RingBufferSize
	}
	if file.SupervisorMaxRestarts > 0 {
		base.SupervisorMaxRestarts = file.SupervisorMaxRestarts
	}
	if file.WatchdogSchedule != "" {
		base.WatchdogSchedule = file.WatchdogSchedule
	}
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*dst = parsed
	}
}

// DataDir returns the user-scoped directory all filesystem state lives under,
// creating it if necessary (spec.md §6, "All under a user-scoped directory").
func DataDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "."+appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
