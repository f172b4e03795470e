package main

import (
	"context"
	"fmt"
	"os"

	"github.com/outpostctl/outpost/internal/jobsupervisor"
)

func main() {
	if path, ok := workerHandoffPath(os.Args); ok {
		if err := runWorker(context.Background(), path); err != nil {
			fmt.Fprintln(os.Stderr, "outpost worker:", err)
			os.Exit(1)
		}
		return
	}
	os.Exit(run())
}

// workerHandoffPath detects the hidden re-exec flag jobsupervisor.Dispatch
// launches workers with, before cobra ever sees os.Args — this is a
// distinct startup mode, not a normal subcommand (spec.md §4.10).
func workerHandoffPath(args []string) (string, bool) {
	for i, a := range args {
		if a == jobsupervisor.WorkerHandoffFlag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// runWorker is the body of a freshly re-exec'd background worker: load the
// handoff, rebuild (or, for a watchdog relaunch with no live session,
// re-authenticate) the GameSession, enter background mode, and run the
// requested module to completion.
func runWorker(ctx context.Context, handoffPath string) error {
	a, err := newApp()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	h, err := jobsupervisor.Read(handoffPath)
	if err != nil {
		return fmt.Errorf("read handoff: %w", err)
	}

	session, err := sessionFromHandoff(ctx, a, h)
	if err != nil {
		return fmt.Errorf("rebuild session: %w", err)
	}

	registry := a.registry(h.World, h.User)
	if err := jobsupervisor.EnterBackgroundMode(session, registry, h.Label, h.ModuleName); err != nil {
		return fmt.Errorf("enter background mode: %w", err)
	}

	modules := a.modules(h.AccountKey)
	mod, ok := modules.ByName(h.ModuleName)
	if !ok {
		return fmt.Errorf("no module named %q", h.ModuleName)
	}
	return mod.Run(ctx, session, h.Inputs)
}
