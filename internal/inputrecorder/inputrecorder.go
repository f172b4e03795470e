// Package inputrecorder captures the answers a user gives a module's
// configuration phase, so the answers can be replayed into a worker at
// auto-restart without a human present (spec.md §4.9, §8 testable
// property 8). It also implements the replay side: a pre-populated input
// list a detached worker consumes instead of ever prompting.
package inputrecorder

import (
	"encoding/json"
	"fmt"

	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/filestore"
)

// Recorder appends every prompt answer given during a recording session.
type Recorder struct {
	answers []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one answer to the in-memory list.
func (r *Recorder) Record(answer string) {
	r.answers = append(r.answers, answer)
}

// Answers returns the recorded answers in order.
func (r *Recorder) Answers() []string {
	out := make([]string, len(r.answers))
	copy(out, r.answers)
	return out
}

// Flush persists the recorded answers to a well-known temp file so the
// parent process can read them after a worker signals it has entered
// background mode (spec.md §6's recorded-inputs handoff file).
func (r *Recorder) Flush(path string) error {
	raw, err := json.Marshal(r.answers)
	if err != nil {
		return fmt.Errorf("inputrecorder: marshal: %w", err)
	}
	return filestore.WriteAtomic(path, raw, 0o600)
}

// ReadFlushed reads the recorded-inputs handoff file a worker just wrote,
// for the parent to finalize an AutoLoadEntry from.
func ReadFlushed(path string) ([]string, error) {
	raw, existed, err := filestore.ReadOrDefault(path, nil)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nil
	}
	var answers []string
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("inputrecorder: unmarshal flushed inputs: %w", err)
	}
	return answers, nil
}

// Player feeds a pre-recorded answer list to a worker's configuration
// phase, consuming entries from the front. Once exhausted, Next returns
// agenterrors.NotInteractive() rather than ever falling back to a real prompt — a
// detached worker must never block on stdin (spec.md §4.9).
type Player struct {
	answers []string
	pos     int
}

// NewPlayer returns a Player that will replay answers in order.
func NewPlayer(answers []string) *Player {
	return &Player{answers: answers}
}

// Next returns the next recorded answer, or agenterrors.NotInteractive
// once the list is exhausted.
func (p *Player) Next() (string, error) {
	if p.pos >= len(p.answers) {
		return "", agenterrors.NotInteractive()
	}
	answer := p.answers[p.pos]
	p.pos++
	return answer, nil
}

// Remaining reports how many recorded answers are left.
func (p *Player) Remaining() int {
	return len(p.answers) - p.pos
}
