// Package sessionbuild bridges a LoginStateMachine result into a live
// GameSession, the one conversion spec.md leaves implicit: "LoginResult"
// is phase output, "GameSession" is what every module actually runs
// against. Grounded on gamesession.Session's own Serialize/Deserialize
// pair and ImportCookies, which already define the wire shape this
// package just has to populate from a *loginmachine.LoginResult instead
// of a worker handoff file.
package sessionbuild

import (
	"context"
	"net/http"

	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/loginmachine"
)

// FromLoginResult builds a fresh GameSession for the game world a
// successful login just handed off to, importing its cookies and
// priming the token cache off the initial page HTML.
func FromLoginResult(ctx context.Context, cfg gamesession.Config, result *loginmachine.LoginResult) (*gamesession.Session, error) {
	cfg.BaseURL = result.URLBase
	cfg.GameHost = result.GameHost

	session, err := gamesession.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := session.ImportCookies(ctx, toCookieRecords(result.Cookies)); err != nil {
		return nil, err
	}

	// The CSRF token and current-city id are the only two fields
	// GameSession's token cache tracks (spec.md §4.2); auth/device tokens
	// are the account store's fast-path cache, not session state.
	session.Tokens().TryExtract(result.InitialPageHTML)
	return session, nil
}

func toCookieRecords(cookies []*http.Cookie) []gamesession.CookieRecord {
	out := make([]gamesession.CookieRecord, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, gamesession.CookieRecord{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Expires: c.Expires, Secure: c.Secure, HTTPOnly: c.HttpOnly,
		})
	}
	return out
}
