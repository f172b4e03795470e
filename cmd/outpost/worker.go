package main

import (
	"context"
	"fmt"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/config"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/jobsupervisor"
	"github.com/outpostctl/outpost/internal/loginmachine"
	"github.com/outpostctl/outpost/internal/sessionbuild"
	"github.com/outpostctl/outpost/internal/version"
)

// sessionFromHandoff rebuilds the worker's GameSession from the handoff's
// serialized cookies/tokens, or — for a watchdog relaunch that had no live
// session to pass along — re-runs the (non-interactive) login pipeline
// against the stored account (spec.md §4.9: "resume without a human
// present").
func sessionFromHandoff(ctx context.Context, a *app, h jobsupervisor.Handoff) (*gamesession.Session, error) {
	cfg := gamesession.Config{
		RateLimitInterval:  a.knobs.RateLimitInterval,
		NetworkBackoff:     a.knobs.NetworkBackoff,
		MaintenanceBackoff: a.knobs.MaintenanceBackoff,
		HealthPingInterval: a.knobs.HealthPingInterval,
		RingBufferSize:     a.knobs.RingBufferSize,
	}

	if h.Session.BaseURL != "" {
		return gamesession.Deserialize(h.Session, cfg)
	}
	return reauthenticate(ctx, a, h, cfg)
}

// reauthenticate looks the account up by World/User and runs the login
// machine non-interactively — a detached worker has no terminal, so any
// captcha/2FA prompt must fail fast rather than block (spec.md §4.9).
func reauthenticate(ctx context.Context, a *app, h jobsupervisor.Handoff, cfg gamesession.Config) (*gamesession.Session, error) {
	if err := unlock(a); err != nil {
		return nil, fmt.Errorf("unlock account store: %w", err)
	}

	var target *account.Account
	for _, acct := range a.store.List() {
		if acct.World == h.World && acct.Username == h.User {
			found := acct
			target = &found
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no saved account for world=%q user=%q", h.World, h.User)
	}

	lobbyBase := config.GetEnv(lobbyURLEnv, "https://lobby.ikariam.gameforge.com")
	machine, err := loginmachine.New(loginmachine.Config{
		Endpoints:     defaultEndpoints(lobbyBase),
		MaxAttempts:   a.knobs.LoginMaxAttempts,
		Interactive:   false,
		CaptchaSolver: nonInteractiveCaptchaSolver{},
		UserAgent:     version.UserAgent(),
		Logger:        a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("build login machine: %w", err)
	}

	result, err := machine.Run(ctx, *target)
	if err != nil {
		return nil, fmt.Errorf("re-login failed: %w", err)
	}
	cfg.ProxyURL = proxyURL(*target)
	return sessionbuild.FromLoginResult(ctx, cfg, result)
}

// nonInteractiveCaptchaSolver always fails: a detached worker must never
// block on a human, and a captcha mid-relaunch is rare enough that surfacing
// the failure (and letting the supervisor's restart/mailbox path report it)
// beats guessing.
type nonInteractiveCaptchaSolver struct{}

func (nonInteractiveCaptchaSolver) Solve(ctx context.Context, textImage, iconsImage []byte) (int, error) {
	return 0, fmt.Errorf("captcha required but running non-interactively")
}
