// Package loginmachine implements the ten-phase Gameforge-style login
// pipeline (spec.md §4.6): lobby environment discovery, anti-bot handshake,
// device fingerprinting, credential submission with 2FA/captcha branches,
// token extraction, world/character selection, and game-world handoff.
//
// The machine drives its own http.Client rather than a GameSession's
// Get/Post, because none of the retry/re-auth/rate-limit semantics those
// apply (spec.md §4.6: "driven by the GameSession's raw HTTP primitives,
// no re-auth semantics yet") — and because a GameSession is itself
// *produced* by a successful run of this machine, which would make an
// import the wrong way round. The composition root wires the result back
// into a gamesession.Session via gamesession.Deserialize or ImportCookies.
package loginmachine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/logging"
	"github.com/outpostctl/outpost/internal/redact"
	"github.com/outpostctl/outpost/internal/resilience"
)

// Endpoints collects every external URL the machine calls, so tests can
// point them at an httptest.Server instead of the real lobby/game hosts.
type Endpoints struct {
	LobbyURL          string // base, no trailing slash, e.g. "https://lobby.example.com"
	LobbyConfigJS     string
	CloudflareConfig  string
	CloudflareConnect string
	FingerprintURL    string
	AuthOptionsURL    string // OPTIONS preflight target
	AuthSessionURL    string
	LobbyMeURL        string
	LobbyAccountsURL  string
	LobbyServersURL   string
	LoginLinkURL      string // world-entry endpoint
	CaptchaImageBase  string
}

// Config bundles the knobs and capabilities a Machine is built with.
type Config struct {
	Endpoints      Endpoints
	MaxAttempts    int
	RetryDelay     time.Duration
	CaptchaRetries int
	Interactive    bool
	Prompter       Prompter      // required when Interactive
	CaptchaSolver  CaptchaSolver // required for the captcha subphase
	UserAgent      string
	Logger         *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.CaptchaRetries <= 0 {
		c.CaptchaRetries = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; outpost-agent)"
	}
	return c
}

// Machine runs the ten-phase login pipeline for one Account.
type Machine struct {
	cfg     Config
	client  *http.Client
	log     *logrus.Entry
	breaker *resilience.CircuitBreaker
}

// New builds a Machine. Each Run gets a fresh cookie jar, matching the
// spec's "every phase updates the shared cookie jar" for one login
// attempt — but a *Machine* itself may be reused across accounts since no
// per-account state is held between Run calls. The anti-bot handshake
// phase runs behind a CircuitBreaker (spec.md §4.5) so a run of consecutive
// Cloudflare blocks trips the breaker and fails fast instead of hammering
// the handshake endpoints every retry.
func New(cfg Config) (*Machine, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = logging.Default("loginmachine")
	}
	return &Machine{cfg: cfg, log: log, breaker: resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig())}, nil
}

// Run executes phases 0 through 10 for acct, retrying the whole pipeline
// up to Config.MaxAttempts times on any error except VacationMode,
// which is terminal (spec.md §4.6).
func (m *Machine) Run(ctx context.Context, acct account.Account) (*LoginResult, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		result, err := m.attempt(ctx, acct)
		if err == nil {
			return result, nil
		}
		if agenterrors.Is(err, agenterrors.CodeVacationMode) {
			return nil, err
		}
		lastErr = err
		m.log.WithField("error", redact.Error(err)).Warnf("login attempt %d/%d failed", attempt, m.cfg.MaxAttempts)

		if attempt < m.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.cfg.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("loginmachine: exhausted %d attempts: %w", m.cfg.MaxAttempts, lastErr)
}

func (m *Machine) attempt(ctx context.Context, acct account.Account) (*LoginResult, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("loginmachine: build cookie jar: %w", err)
	}
	m.client = &http.Client{Jar: jar, Timeout: 30 * time.Second}

	st := &attemptState{acct: acct}

	if skip, err := m.phase0CachedFastPath(ctx, st); err != nil {
		return nil, err
	} else if !skip {
		if err := m.phase1EnvironmentIDs(ctx, st); err != nil {
			return nil, err
		}
		if err := m.breaker.Execute(ctx, func() error { return m.phase2AntiBotHandshake(ctx, st) }); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
				return nil, agenterrors.LoginFailed("anti-bot handshake circuit open after repeated blocks", err)
			}
			return nil, err
		}
		m.phase3DeviceFingerprint(ctx, st) // non-fatal, errors swallowed
		if err := m.phase4CORSPreflight(ctx, st); err != nil {
			return nil, err
		}
		if err := m.phase5Authenticate(ctx, st); err != nil {
			return nil, err
		}
		if err := m.phase7TokenExtraction(ctx, st); err != nil {
			return nil, err
		}
	}

	if err := m.phase8WorldSelection(ctx, st); err != nil {
		return nil, err
	}
	if err := m.phase9GameWorldHandoff(ctx, st); err != nil {
		return nil, err
	}
	if err := m.phase10Validation(st); err != nil {
		return nil, err
	}

	return st.toResult(), nil
}

// attemptState carries everything accumulated across phases for one
// attempt. Kept as a struct rather than threaded return values because
// the phases are linear and each only adds fields, matching the source's
// "LoginResult built up incrementally" shape.
type attemptState struct {
	acct account.Account

	gameEnvironmentID string
	platformGameID    string

	deviceToken string
	authToken   string

	playerName       string
	characterID      string
	worldDisplayName string
	worldID          account.WorldId

	gameHost        string
	urlBase         string
	initialPageHTML string
	requestHeaders  map[string]string
	cookies         []*http.Cookie
}

func (st *attemptState) toResult() *LoginResult {
	cookies := st.cookies
	return &LoginResult{
		GameHost:         st.gameHost,
		URLBase:          st.urlBase,
		PlayerName:       st.playerName,
		WorldID:          st.worldID,
		CharacterID:      st.characterID,
		WorldDisplayName: st.worldDisplayName,
		InitialPageHTML:  st.initialPageHTML,
		AuthToken:        st.authToken,
		DeviceToken:      st.deviceToken,
		RequestHeaders:   st.requestHeaders,
		Cookies:          cookies,
	}
}
