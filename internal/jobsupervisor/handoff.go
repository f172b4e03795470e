package jobsupervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/outpostctl/outpost/internal/filestore"
	"github.com/outpostctl/outpost/internal/gamesession"
)

// Handoff is the file a parent writes and a freshly exec'd worker reads on
// startup (spec.md §9: "explicit serialize/deserialize... no in-memory
// sharing"; original_source's fork-and-reexec carries the same data
// through process memory instead, since Python's os.fork() inherits it —
// Go's process model has no equivalent, so the data crosses a file).
type Handoff struct {
	ModuleName string             `json:"module_name"`
	Label      string             `json:"label"`
	AccountKey string             `json:"account_key"`
	World      string             `json:"world"`
	User       string             `json:"user"`
	Session    gamesession.Record `json:"session"`
	Inputs     []string           `json:"inputs,omitempty"`
}

// WritePath returns a fresh, unique handoff file path under dir.
func WritePath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("handoff-%s.json", uuid.NewString()))
}

// Write persists h to path.
func Write(path string, h Handoff) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("jobsupervisor: marshal handoff: %w", err)
	}
	return filestore.WriteAtomic(path, raw, 0o600)
}

// Read loads and deletes the handoff file at path — a worker consumes its
// handoff exactly once, at startup.
func Read(path string) (Handoff, error) {
	raw, existed, err := filestore.ReadOrDefault(path, nil)
	if err != nil {
		return Handoff{}, err
	}
	if !existed {
		return Handoff{}, fmt.Errorf("jobsupervisor: no handoff file at %s", path)
	}
	var h Handoff
	if err := json.Unmarshal(raw, &h); err != nil {
		return Handoff{}, fmt.Errorf("jobsupervisor: unmarshal handoff: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Handoff{}, fmt.Errorf("jobsupervisor: remove handoff: %w", err)
	}
	return h, nil
}
