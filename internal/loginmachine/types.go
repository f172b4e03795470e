package loginmachine

import (
	"context"
	"net/http"

	"github.com/outpostctl/outpost/internal/account"
)

// LoginResult is everything produced by a successful login (spec.md §3),
// enough for the composition root to build or re-cookie a GameSession.
type LoginResult struct {
	GameHost         string
	URLBase          string
	PlayerName       string
	WorldID          account.WorldId
	CharacterID      string
	WorldDisplayName string
	InitialPageHTML  string
	AuthToken        string
	DeviceToken      string
	RequestHeaders   map[string]string
	Cookies          []*http.Cookie
}

// Prompter is the interactive-input capability phases 5 (2FA) and 7
// (manual token entry) call through, so the same machine runs whether
// driven by a human terminal or fails fast under replay (spec.md §9:
// "keep UI I/O behind a capability interface").
type Prompter interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Choose(ctx context.Context, prompt string, options []string) (int, error)
}

// CaptchaSolver is the external capability phase 6 calls to resolve the
// icon-matching captcha: given the text challenge image and the icon grid
// image, it returns the index (0-3) of the correct icon.
type CaptchaSolver interface {
	Solve(ctx context.Context, textImage, iconsImage []byte) (int, error)
}
