// Package processregistry is the per-account on-disk list of live
// background worker PIDs, their human label, start time, last heartbeat,
// and current status string (spec.md §4.7). The parent UI reads it to
// render worker health; each worker writes its own heartbeat.
package processregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/outpostctl/outpost/internal/filestore"
)

// WorkerRecord is one live background worker (spec.md §3).
type WorkerRecord struct {
	PID           int32     `json:"pid"`
	Label         string    `json:"label"`
	ModuleName    string    `json:"module_name"`
	StartedAt     time.Time `json:"started_at"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry is the single JSON document for one account's worker list.
type Registry struct {
	path       string
	executable string // our own executable name, for PID-reuse protection
}

// New returns a Registry rooted at dir for the given account/world key,
// matching spec.md §6's "<home>/.<app>_processes_<world>_<user>.json"
// filename convention.
func New(dir, appName, world, user string) *Registry {
	path := filepath.Join(dir, fmt.Sprintf(".%s_processes_%s_%s.json", appName, sanitize(world), sanitize(user)))
	return &Registry{path: path, executable: ourExecutableName()}
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func ourExecutableName() string {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

func (r *Registry) readAll() ([]WorkerRecord, error) {
	raw, existed, err := filestore.ReadOrDefault(r.path, []byte("[]"))
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nil
	}
	var records []WorkerRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil // a corrupt file is treated as empty, not fatal
	}
	return records, nil
}

func (r *Registry) writeAll(records []WorkerRecord) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("processregistry: marshal: %w", err)
	}
	return filestore.WriteAtomic(r.path, raw, 0o600)
}

// alive confirms a PID belongs to a currently-running process with the
// same executable name as ours, guarding against PID reuse across
// unrelated programs (spec.md §4.7).
func (r *Registry) alive(pid int32) bool {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}
	if r.executable == "" {
		return true // can't verify identity; don't falsely evict
	}
	name, err := proc.Name()
	if err != nil {
		return true
	}
	return name == r.executable
}

// Refresh returns the filtered live list: entries whose PID is no longer
// alive, or belongs to a different executable, are dropped and the
// filtered list is persisted (spec.md §4.7, testable property 6).
func (r *Registry) Refresh() ([]WorkerRecord, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, err
	}

	live := make([]WorkerRecord, 0, len(records))
	for _, rec := range records {
		if r.alive(rec.PID) {
			live = append(live, rec)
		}
	}
	if len(live) != len(records) {
		if err := r.writeAll(live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// Register adds a worker record, idempotent by PID.
func (r *Registry) Register(rec WorkerRecord) error {
	records, err := r.readAll()
	if err != nil {
		return err
	}
	for i, existing := range records {
		if existing.PID == rec.PID {
			records[i] = rec
			return r.writeAll(records)
		}
	}
	records = append(records, rec)
	return r.writeAll(records)
}

// UpdateStatus rewrites the status and last_heartbeat of the entry
// matching pid, refreshing its heartbeat.
func (r *Registry) UpdateStatus(pid int32, status string) error {
	records, err := r.readAll()
	if err != nil {
		return err
	}
	found := false
	for i := range records {
		if records[i].PID == pid {
			records[i].Status = status
			records[i].LastHeartbeat = time.Now()
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	return r.writeAll(records)
}

// Remove deletes the entry for pid, used when the parent explicitly kills
// a worker.
func (r *Registry) Remove(pid int32) error {
	records, err := r.readAll()
	if err != nil {
		return err
	}
	filtered := records[:0]
	for _, rec := range records {
		if rec.PID != pid {
			filtered = append(filtered, rec)
		}
	}
	return r.writeAll(filtered)
}

// HeartbeatAge returns how long it has been since entry last heartbeat.
func HeartbeatAge(entry WorkerRecord) time.Duration {
	if entry.LastHeartbeat.IsZero() {
		return 0
	}
	return time.Since(entry.LastHeartbeat)
}

// IsFrozen reports whether entry's heartbeat is older than threshold
// (spec.md's "Frozen worker" glossary entry, default 10 minutes).
func IsFrozen(entry WorkerRecord, threshold time.Duration) bool {
	if entry.LastHeartbeat.IsZero() {
		return false
	}
	return HeartbeatAge(entry) > threshold
}
