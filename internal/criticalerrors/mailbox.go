// Package criticalerrors implements the append-and-drain spool workers use
// to report fatal errors to the parent UI (spec.md §4.8). A worker that
// hits a failure it cannot recover from appends one record; the parent
// drains the whole file before rendering its menu.
package criticalerrors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/outpostctl/outpost/internal/filestore"
)

// CriticalError is one append-only spool record (spec.md §3).
type CriticalError struct {
	PID       int32     `json:"pid"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Mailbox is the per-account spool file.
type Mailbox struct {
	path string
}

// New returns a Mailbox rooted at dir for the given account/world key,
// matching spec.md §6's "<home>/.<app>_errors_<world>_<user>.json".
func New(dir, appName, world, user string) *Mailbox {
	path := filepath.Join(dir, fmt.Sprintf(".%s_errors_%s_%s.json", appName, sanitize(world), sanitize(user)))
	return &Mailbox{path: path}
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

// Report appends a CriticalError to the spool, via the shared
// read-modify-write-via-temp-file convention.
func (m *Mailbox) Report(pid int32, module, message string) error {
	return filestore.Update(m.path, func(current []byte, existed bool) ([]byte, error) {
		var errors []CriticalError
		if existed {
			_ = json.Unmarshal(current, &errors) // corrupt file: start fresh rather than fail the report
		}
		errors = append(errors, CriticalError{
			PID: pid, Module: module, Message: message, Timestamp: time.Now(),
		})
		return json.MarshalIndent(errors, "", "  ")
	})
}

// Drain atomically moves the spool file aside and returns its contents,
// so the parent's menu render never races a worker's concurrent Report.
func (m *Mailbox) Drain() ([]CriticalError, error) {
	drained := m.path + ".draining"
	if err := os.Rename(m.path, drained); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("criticalerrors: move spool aside: %w", err)
	}

	raw, err := os.ReadFile(drained)
	if err != nil {
		return nil, fmt.Errorf("criticalerrors: read drained spool: %w", err)
	}
	if err := os.Remove(drained); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("criticalerrors: remove drained spool: %w", err)
	}

	var errors []CriticalError
	if err := json.Unmarshal(raw, &errors); err != nil {
		return nil, nil
	}
	return errors, nil
}
