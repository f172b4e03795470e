package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/config"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/loginmachine"
	"github.com/outpostctl/outpost/internal/sessionbuild"
	"github.com/outpostctl/outpost/internal/version"
)

// lobbyURLEnv names the lobby host override; the default points at the
// shape every phase in internal/loginmachine/phases.go expects, and an
// operator running against a different Gameforge-style lobby just sets
// the env var rather than recompiling.
const lobbyURLEnv = "OUTPOST_LOBBY_URL"

func defaultEndpoints(lobbyBase string) loginmachine.Endpoints {
	return loginmachine.Endpoints{
		LobbyURL:          lobbyBase,
		LobbyConfigJS:     lobbyBase + "/config.js",
		CloudflareConfig:  lobbyBase + "/cdn-cgi/challenge-platform/h/g/orchestrate/chl_page/v1",
		CloudflareConnect: lobbyBase + "/cdn-cgi/challenge-platform/h/g/cv1",
		FingerprintURL:    lobbyBase + "/fingerprint",
		AuthOptionsURL:    lobbyBase + "/api/users",
		AuthSessionURL:    lobbyBase + "/api/users",
		LobbyMeURL:        lobbyBase + "/api/users/me",
		LobbyAccountsURL:  lobbyBase + "/api/users/me/accounts",
		LobbyServersURL:   lobbyBase + "/api/servers",
		LoginLinkURL:      lobbyBase + "/api/users/me/loginLink",
		CaptchaImageBase:  lobbyBase + "/challenge/id",
	}
}

func newLoginCommand(a *app) *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log into a saved account and open the interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(a); err != nil {
				return err
			}
			acct, ok := a.store.Get(accountID)
			if !ok {
				return fmt.Errorf("no saved account with id %q", accountID)
			}
			return runLogin(cmd.Context(), a, acct)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account ID from `outpost accounts list`")
	cmd.MarkFlagRequired("account")
	return cmd
}

func runLogin(ctx context.Context, a *app, acct account.Account) error {
	lobbyBase := config.GetEnv(lobbyURLEnv, "https://lobby.ikariam.gameforge.com")

	machine, err := loginmachine.New(loginmachine.Config{
		Endpoints:      defaultEndpoints(lobbyBase),
		MaxAttempts:    a.knobs.LoginMaxAttempts,
		CaptchaRetries: a.knobs.CaptchaMaxAttempts,
		Interactive:    true,
		Prompter:       surveyPrompter{},
		CaptchaSolver:  newCLICaptchaSolver(a.log),
		UserAgent:      version.UserAgent(),
		Logger:         a.log,
	})
	if err != nil {
		return fmt.Errorf("build login machine: %w", err)
	}

	result, err := machine.Run(ctx, acct)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	session, err := sessionbuild.FromLoginResult(ctx, gamesession.Config{
		RateLimitInterval:  a.knobs.RateLimitInterval,
		NetworkBackoff:     a.knobs.NetworkBackoff,
		MaintenanceBackoff: a.knobs.MaintenanceBackoff,
		HealthPingInterval: a.knobs.HealthPingInterval,
		RingBufferSize:     a.knobs.RingBufferSize,
		ProxyURL:           proxyURL(acct),
	}, result)
	if err != nil {
		return fmt.Errorf("build game session: %w", err)
	}

	fmt.Printf("logged in as %s on %s\n", result.PlayerName, result.WorldDisplayName)
	return runMenu(ctx, a, acct, session)
}

func proxyURL(acct account.Account) string {
	if acct.Proxy == nil {
		return ""
	}
	return acct.Proxy.URL
}
