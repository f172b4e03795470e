package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/autoloader"
	"github.com/outpostctl/outpost/internal/config"
	"github.com/outpostctl/outpost/internal/criticalerrors"
	"github.com/outpostctl/outpost/internal/logging"
	"github.com/outpostctl/outpost/internal/modregistry"
	"github.com/outpostctl/outpost/internal/modules/status"
	"github.com/outpostctl/outpost/internal/modules/transport"
	"github.com/outpostctl/outpost/internal/processregistry"
)

const appName = "outpost"

// app is the composition root: every long-lived, per-account collaborator a
// subcommand needs, built once from config.Knobs and the resolved data dir.
type app struct {
	log     *logrus.Entry
	knobs   config.Knobs
	dataDir string
	store   *account.Store
}

func newApp() (*app, error) {
	dataDir, err := config.DataDir(appName)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	knobsPath := filepath.Join(dataDir, "knobs.toml")

	return &app{
		log:     logging.Default("outpost"),
		knobs:   config.LoadKnobs(knobsPath),
		dataDir: dataDir,
		store:   account.New(filepath.Join(dataDir, "accounts.enc")),
	}, nil
}

// accountKey builds the "<world>_<user>" identity string used as the
// FleetLock/TransportEngine account key (distinct from the per-file
// world/user pair processregistry.New and friends take separately).
func accountKey(a account.Account) string {
	return fmt.Sprintf("%s_%s", a.World, a.Username)
}

func (a *app) registry(world, user string) *processregistry.Registry {
	return processregistry.New(a.dataDir, appName, world, user)
}

func (a *app) mailbox(world, user string) *criticalerrors.Mailbox {
	return criticalerrors.New(a.dataDir, appName, world, user)
}

func (a *app) autoloadStore(world, user string) *autoloader.Store {
	return autoloader.New(a.dataDir, appName, world, user)
}

// modules builds the registry of automatable modules for one account,
// wiring the real status/transport modules plus the subdomain stubs
// (spec.md Non-goals).
func (a *app) modules(acctKey string) *modregistry.Registry {
	statusMod := status.New(a.log.WithField("module", status.ModuleName))
	transportMod := transport.New(a.log.WithField("module", transport.ModuleName), filepath.Join(a.dataDir, "locks"), acctKey)
	return modregistry.Default(transportMod, statusMod)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "outpost: "+format+"\n", args...)
	os.Exit(1)
}
