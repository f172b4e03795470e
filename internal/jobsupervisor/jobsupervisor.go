// Package jobsupervisor dispatches a module onto a detached background
// worker process and restarts it if it dies, grounded on
// original_source/autoIkabot/utils/process.py: that module forks the
// Python process and marks the child non-interactive (deactivate_sigint,
// set_child_mode). Go has no fork(); Supervisor gets the same effect by
// re-exec'ing os.Args[0] with a hidden worker flag and a handoff file
// carrying what the child would otherwise have inherited from parent
// memory (spec.md §4.10).
package jobsupervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/criticalerrors"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/inputrecorder"
	"github.com/outpostctl/outpost/internal/processregistry"
)

// WorkerHandoffFlag is the hidden CLI flag cmd/outpost registers to detect
// it was re-exec'd as a background worker rather than launched interactively.
const WorkerHandoffFlag = "--worker-handoff"

// heartbeatStaleThreshold mirrors process.py's HEARTBEAT_STALE_THRESHOLD:
// a worker that hasn't refreshed its heartbeat in this long is frozen.
const heartbeatStaleThreshold = 10 * time.Minute

// RestartPolicy bounds the supervisor's respawn behavior for one job.
type RestartPolicy struct {
	MaxRestarts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.MaxRestarts == 0 {
		p.MaxRestarts = 5
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 5 * time.Minute
	}
	return p
}

// Supervisor dispatches and tracks detached workers for one account.
type Supervisor struct {
	mu         sync.Mutex
	executable string
	runDir     string
	registry   *processregistry.Registry
	mailbox    *criticalerrors.Mailbox
	logger     *logrus.Entry
}

// New returns a Supervisor. executable is the path used to re-exec workers
// (normally os.Args[0]); runDir holds handoff and recorded-input files.
func New(executable, runDir string, registry *processregistry.Registry, mailbox *criticalerrors.Mailbox, logger *logrus.Entry) *Supervisor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{executable: executable, runDir: runDir, registry: registry, mailbox: mailbox, logger: logger}
}

// Job describes one module run to dispatch onto a worker. Session may be
// nil for a watchdog-issued relaunch that has no live session to hand
// off — the worker then re-authenticates itself from World/User before
// running the module (spec.md §4.9).
type Job struct {
	Label      string
	ModuleName string
	AccountKey string
	World      string
	User       string
	Session    *gamesession.Session
	Inputs     []string
	Policy     RestartPolicy
}

// Dispatch writes the handoff file and execs a detached worker process for
// job, returning its PID. It does not wait for the worker to exit — use
// Supervise to keep it alive across crashes.
func (s *Supervisor) Dispatch(ctx context.Context, job Job) (int, error) {
	if err := os.MkdirAll(s.runDir, 0o700); err != nil {
		return 0, fmt.Errorf("jobsupervisor: mkdir run dir: %w", err)
	}
	handoffPath := WritePath(s.runDir)
	h := Handoff{
		ModuleName: job.ModuleName,
		Label:      job.Label,
		AccountKey: job.AccountKey,
		World:      job.World,
		User:       job.User,
		Inputs:     job.Inputs,
	}
	if job.Session != nil {
		h.Session = job.Session.Serialize()
	}
	if err := Write(handoffPath, h); err != nil {
		return 0, err
	}

	cmd := exec.Command(s.executable, WorkerHandoffFlag, handoffPath)
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true} // detach from our controlling terminal, like set_child_mode's signal isolation
	if err := cmd.Start(); err != nil {
		os.Remove(handoffPath)
		return 0, fmt.Errorf("jobsupervisor: start worker: %w", err)
	}

	pid := int32(cmd.Process.Pid)
	if err := s.registry.Register(processregistry.WorkerRecord{
		PID:           pid,
		Label:         job.Label,
		ModuleName:    job.ModuleName,
		StartedAt:     time.Now(),
		Status:        "starting",
		LastHeartbeat: time.Now(),
	}); err != nil {
		s.logger.WithError(err).Warn("jobsupervisor: failed to register dispatched worker")
	}

	// Reap the child asynchronously so it never becomes a zombie; the
	// registry (not this goroutine's exit) is the source of truth for
	// liveness elsewhere in the agent.
	go func() {
		_ = cmd.Wait()
	}()

	return int(pid), nil
}

// Kill sends SIGTERM to pid and removes it from the registry.
func (s *Supervisor) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err == nil {
		_ = proc.Signal(syscall.SIGTERM)
	}
	return s.registry.Remove(int32(pid))
}

// Supervise runs job, restarting it with bounded exponential backoff if the
// worker process exits before ctx is done, mirroring process.py's retry
// loop around a frozen/dead process (but implemented as a supervising
// goroutine here rather than a second forked watcher).
func (s *Supervisor) Supervise(ctx context.Context, job Job, dispatch func(ctx context.Context, job Job) (int, error)) error {
	policy := job.Policy.withDefaults()
	delay := policy.InitialDelay

	for attempt := 0; ; attempt++ {
		pid, err := dispatch(ctx, job)
		if err != nil {
			return fmt.Errorf("jobsupervisor: dispatch %s: %w", job.Label, err)
		}

		exited := s.waitForExit(ctx, int32(pid))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !exited {
			return nil // context canceled mid-wait, caller is shutting down
		}

		if attempt >= policy.MaxRestarts {
			msg := fmt.Sprintf("worker %q exited and exhausted %d restart attempts", job.Label, policy.MaxRestarts)
			if s.mailbox != nil {
				_ = s.mailbox.Report(int32(pid), job.ModuleName, msg)
			}
			return agenterrors.ModuleCrash(job.ModuleName, fmt.Errorf("%s", msg))
		}

		s.logger.WithFields(logrus.Fields{"label": job.Label, "attempt": attempt + 1, "delay": delay}).
			Warn("jobsupervisor: worker exited, restarting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

// waitForExit polls the registry until pid disappears (process.py has no
// SIGCHLD across a re-exec boundary either; it polls the process list the
// same way via psutil). Returns false if ctx was canceled first.
func (s *Supervisor) waitForExit(ctx context.Context, pid int32) bool {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			entries, err := s.registry.Refresh()
			if err != nil {
				continue
			}
			found := false
			for _, e := range entries {
				if e.PID != pid {
					continue
				}
				if processregistry.IsFrozen(e, heartbeatStaleThreshold) {
					s.logger.WithField("pid", pid).Warn("jobsupervisor: worker heartbeat stale, treating as dead")
					_ = s.registry.Remove(pid)
					return true
				}
				found = true
				break
			}
			if !found {
				return true
			}
		}
	}
}

// EnterBackgroundMode is the first call a re-exec'd worker binary makes: it
// marks the session non-parent, ignores SIGINT, redirects the session's
// status updates into the process registry, and registers itself — the Go
// equivalent of process.py's set_child_mode plus deactivate_sigint.
func EnterBackgroundMode(session *gamesession.Session, registry *processregistry.Registry, label, moduleName string) error {
	session.MarkWorker()
	signal.Ignore(syscall.SIGINT)

	pid := int32(os.Getpid())
	if err := registry.Register(processregistry.WorkerRecord{
		PID:           pid,
		Label:         label,
		ModuleName:    moduleName,
		StartedAt:     time.Now(),
		Status:        "running",
		LastHeartbeat: time.Now(),
	}); err != nil {
		return fmt.Errorf("jobsupervisor: register worker: %w", err)
	}

	session.SetStatusHook(func(status string) {
		_ = registry.UpdateStatus(pid, status)
	})
	return nil
}

// FlushInputs persists the recorder's answers next to the handoff file so
// the parent can build an AutoLoadEntry once the worker signals readiness
// (spec.md §4.9's recorded-inputs handoff).
func FlushInputs(rec *inputrecorder.Recorder, handoffPath string) error {
	return rec.Flush(flushedInputsPath(handoffPath))
}

// ReadFlushedInputs reads back the recorded answers a worker flushed.
func ReadFlushedInputs(handoffPath string) ([]string, error) {
	return inputrecorder.ReadFlushed(flushedInputsPath(handoffPath))
}

func flushedInputsPath(handoffPath string) string {
	dir := filepath.Dir(handoffPath)
	base := filepath.Base(handoffPath)
	return filepath.Join(dir, "inputs-"+base)
}
