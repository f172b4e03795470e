// Package fleetlock implements the cross-process "one holder at a time"
// lock TransportEngine takes out before moving ships of a given class for
// a given account, so the parent and every detached worker never double
// up on the same fleet.
package fleetlock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Payload is the JSON document written inside the locked file, letting a
// reader apply the stale-holder eviction rule even though flock itself
// only arbitrates between concurrent writers, not staleness.
type Payload struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	ShipClass  string    `json:"ship_class"`
	AccountKey string    `json:"account_key"`
}

// Lock guards one (account, ship class) fleet against concurrent transport
// jobs.
type Lock struct {
	path          string
	accountKey    string
	shipClass     string
	staleAfter    time.Duration
	pollInterval  time.Duration
	flock         *flock.Flock
}

// New returns a Lock for the given account and ship class, rooted under
// dir (a user-scoped directory, spec.md §3's FleetLock file location).
func New(dir, accountKey, shipClass string, staleAfter, pollInterval time.Duration) *Lock {
	path := filepath.Join(dir, fmt.Sprintf("fleetlock-%s-%s.json", accountKey, shipClass))
	return &Lock{
		path:         path,
		accountKey:   accountKey,
		shipClass:    shipClass,
		staleAfter:   staleAfter,
		pollInterval: pollInterval,
	}
}

// ErrTimeout is returned by Acquire when no lock could be obtained before
// the deadline. The caller is expected to retry at a higher level
// (spec.md §4.3: "recoverable error; the caller retries at a higher level").
var ErrTimeout = fmt.Errorf("fleetlock: timed out acquiring lock")

// Acquire repeatedly attempts an exclusive create of the lock file until
// it succeeds or timeout elapses. An existing lock whose acquired_at is
// older than staleAfter is evicted and retried immediately.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	fl := flock.New(l.path + ".flock")

	for {
		locked, err := fl.TryLockContext(ctx, l.pollInterval)
		if err != nil {
			return fmt.Errorf("fleetlock: acquire flock: %w", err)
		}
		if locked {
			if err := l.writeOrEvict(fl); err != nil {
				return err
			}
			if l.flock != nil {
				return nil
			}
			// writeOrEvict found a live, non-stale holder; release and keep polling.
			_ = fl.Unlock()
		}

		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// writeOrEvict is called while fl (the OS-level lock) is held. It inspects
// any existing payload: if there is none, or it is stale, it writes a
// fresh payload for this process and sets l.flock so Acquire can return
// success. If a live holder's payload is found, it leaves l.flock nil so
// the caller keeps polling.
func (l *Lock) writeOrEvict(fl *flock.Flock) error {
	existing, err := readPayload(l.path)
	if err == nil && time.Since(existing.AcquiredAt) <= l.staleAfter {
		return nil
	}

	payload := Payload{
		PID:        os.Getpid(),
		AcquiredAt: time.Now(),
		ShipClass:  l.shipClass,
		AccountKey: l.accountKey,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fleetlock: marshal payload: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0o600); err != nil {
		return fmt.Errorf("fleetlock: write payload: %w", err)
	}
	l.flock = fl
	return nil
}

func readPayload(path string) (Payload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Release confirms this process still owns the lock (PID match) before
// unlinking it. On mismatch it does nothing: another process now owns it.
func (l *Lock) Release() error {
	if l.flock == nil {
		return nil
	}
	defer func() {
		_ = l.flock.Unlock()
		l.flock = nil
	}()

	payload, err := readPayload(l.path)
	if err != nil {
		return nil
	}
	if payload.PID != os.Getpid() {
		return nil
	}
	return os.Remove(l.path)
}
