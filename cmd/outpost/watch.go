package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/autoloader"
	"github.com/outpostctl/outpost/internal/healthserver"
	"github.com/outpostctl/outpost/internal/jobsupervisor"
	"github.com/outpostctl/outpost/internal/version"
)

// newWatchCommand implements `outpost watch`: a long-running process that
// periodically relaunches any enabled autoload entry with no healthy
// worker (spec.md §4.9's startup/watchdog policy) and optionally serves
// /healthz + /metrics.
func newWatchCommand(a *app) *cobra.Command {
	var healthAddr string
	cmd := &cobra.Command{
		Use:   "watch <account-id>",
		Short: "Run the autoload watchdog for one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(a); err != nil {
				return err
			}
			acct, ok := a.store.Get(args[0])
			if !ok {
				return fmt.Errorf("no saved account with id %q", args[0])
			}
			return runWatch(cmd.Context(), a, acct, healthAddr)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "address to serve /healthz and /metrics on, e.g. :8080 (empty disables)")
	return cmd
}

func runWatch(ctx context.Context, a *app, acct account.Account, healthAddr string) error {
	registry := a.registry(acct.World, acct.Username)
	mailbox := a.mailbox(acct.World, acct.Username)
	autoloadStore := a.autoloadStore(acct.World, acct.Username)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	runDir := filepath.Join(a.dataDir, "workers")
	supervisor := jobsupervisor.New(executable, runDir, registry, mailbox, a.log)

	// A watchdog-dispatched worker has no live *gamesession.Session to hand
	// a job — it re-exec's with a handoff carrying only module name and
	// recorded inputs; main.go's worker-handoff branch logs back into the
	// account itself before running the module (spec.md §4.9: "resume
	// without a human present").
	dispatch := autoloader.Dispatcher(func(moduleName string, inputs []string) error {
		_, err := supervisor.Dispatch(ctx, jobsupervisor.Job{
			Label:      fmt.Sprintf("%s-%s", moduleName, accountKey(acct)),
			ModuleName: moduleName,
			AccountKey: accountKey(acct),
			World:      acct.World,
			User:       acct.Username,
			Inputs:     inputs,
		})
		return err
	})

	if healthAddr != "" {
		checker := healthserver.NewChecker(registry, a.knobs.FrozenWorkerThreshold, appName, version.Version)
		srv := &http.Server{Addr: healthAddr, Handler: healthserver.Mux(checker)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.WithError(err).Warn("watch: health server stopped")
			}
		}()
		defer srv.Close()
	}

	c := cron.New()
	if _, err := c.AddFunc(a.knobs.WatchdogSchedule, func() {
		result, err := autoloadStore.LaunchEnabled(registry, a.knobs.FrozenWorkerThreshold, dispatch)
		if err != nil {
			a.log.WithError(err).Warn("watch: LaunchEnabled failed")
			return
		}
		if len(result.Launched) > 0 {
			a.log.WithField("count", len(result.Launched)).Info("watch: relaunched autoload entries")
		}
		for _, w := range result.Frozen {
			a.log.WithField("label", w.Label).Warn("watch: worker heartbeat is frozen")
		}
	}); err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}
	c.Start()
	defer c.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
	}
	return nil
}
