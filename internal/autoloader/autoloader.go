// Package autoloader persists recorded worker configurations so they can
// be replayed non-interactively at startup (spec.md §4.9). Recording
// itself is handled by the sibling inputrecorder package; this package
// owns the saved-entry CRUD and the launch policy.
package autoloader

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/outpostctl/outpost/internal/filestore"
	"github.com/outpostctl/outpost/internal/processregistry"
)

// Entry is one saved worker configuration (spec.md §3's AutoLoadEntry).
type Entry struct {
	ID             string    `json:"id"`
	ModuleName     string    `json:"module_name"`
	ModuleNumber   int       `json:"module_number"`
	Enabled        bool      `json:"enabled"`
	RecordedInputs []string  `json:"recorded_inputs"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	LastLaunched   time.Time `json:"last_launched,omitempty"`
	LaunchCount    int       `json:"launch_count"`
}

// Store is the per-account on-disk list of AutoLoadEntry records.
type Store struct {
	path string
}

// New returns a Store rooted at dir for the given account/world key,
// matching spec.md §6's "<home>/.<app>_autoload_<world>_<user>.json".
func New(dir, appName, world, user string) *Store {
	path := filepath.Join(dir, fmt.Sprintf(".%s_autoload_%s_%s.json", appName, sanitize(world), sanitize(user)))
	return &Store{path: path}
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

func (s *Store) readAll() ([]Entry, error) {
	raw, existed, err := filestore.ReadOrDefault(s.path, nil)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func (s *Store) writeAll(entries []Entry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("autoloader: marshal: %w", err)
	}
	return filestore.WriteAtomic(s.path, raw, 0o600)
}

// List returns every saved entry.
func (s *Store) List() ([]Entry, error) {
	return s.readAll()
}

// Save creates a new entry from a just-finished recording session and
// persists it.
func (s *Store) Save(moduleName string, moduleNumber int, description string, inputs []string, enabled bool) (Entry, error) {
	entries, err := s.readAll()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:             uuid.NewString(),
		ModuleName:     moduleName,
		ModuleNumber:   moduleNumber,
		Enabled:        enabled,
		RecordedInputs: inputs,
		Description:    description,
		CreatedAt:      time.Now(),
	}
	entries = append(entries, entry)
	return entry, s.writeAll(entries)
}

// SetEnabled flips an entry's enabled flag by ID.
func (s *Store) SetEnabled(id string, enabled bool) error {
	entries, err := s.readAll()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Enabled = enabled
			return s.writeAll(entries)
		}
	}
	return fmt.Errorf("autoloader: no entry with id %q", id)
}

// Remove deletes an entry by ID.
func (s *Store) Remove(id string) error {
	entries, err := s.readAll()
	if err != nil {
		return err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			filtered = append(filtered, e)
		}
	}
	return s.writeAll(filtered)
}

func (s *Store) markLaunched(id string) error {
	entries, err := s.readAll()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].LastLaunched = time.Now()
			entries[i].LaunchCount++
		}
	}
	return s.writeAll(entries)
}

// Dispatcher spawns a worker running moduleName with the given recorded
// inputs. Callers wrap JobSupervisor.Dispatch in one (kept as a function
// type so this package never imports jobsupervisor).
type Dispatcher func(moduleName string, inputs []string) error

// LaunchEnabledResult reports what LaunchEnabled did, for the CLI/watch
// command to log.
type LaunchEnabledResult struct {
	Launched []Entry
	Frozen   []processregistry.WorkerRecord
}

// LaunchEnabled implements spec.md §4.9's startup policy and testable
// property 7: refresh the registry, spawn every enabled entry with no
// healthy running worker, and warn (without killing) on frozen workers.
func (s *Store) LaunchEnabled(registry *processregistry.Registry, frozenThreshold time.Duration, dispatch Dispatcher) (LaunchEnabledResult, error) {
	var result LaunchEnabledResult

	live, err := registry.Refresh()
	if err != nil {
		return result, err
	}

	healthyByModule := map[string]bool{}
	var frozen []processregistry.WorkerRecord
	for _, w := range live {
		if processregistry.IsFrozen(w, frozenThreshold) {
			frozen = append(frozen, w)
			continue
		}
		healthyByModule[w.ModuleName] = true
	}
	result.Frozen = frozen

	entries, err := s.readAll()
	if err != nil {
		return result, err
	}

	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if healthyByModule[e.ModuleName] {
			continue
		}
		if err := dispatch(e.ModuleName, e.RecordedInputs); err != nil {
			continue
		}
		if err := s.markLaunched(e.ID); err != nil {
			return result, err
		}
		result.Launched = append(result.Launched, e)
	}

	return result, nil
}
