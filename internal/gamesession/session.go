// Package gamesession implements the long-lived authenticated HTTP client
// every module drives the game through: rate-limited, CSRF-aware, and able
// to transparently ride out network blips, server maintenance windows, and
// its own cookie expiring by re-authenticating in place.
package gamesession

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/healthpinger"
	"github.com/outpostctl/outpost/internal/httpclient"
	"github.com/outpostctl/outpost/internal/ratelimit"
	"github.com/outpostctl/outpost/internal/resilience"
	"github.com/outpostctl/outpost/internal/tokencache"
)

// ReauthResult is what a Reauthenticator hands back: the fresh cookies to
// install before the failing request is retried.
type ReauthResult struct {
	Cookies []*http.Cookie
}

// Reauthenticator runs a full login and reports the cookies to adopt. It is
// implemented by the composition root wiring a LoginStateMachine around an
// Account, kept as a function type here so this package never imports the
// login package.
type Reauthenticator func(ctx context.Context) (*ReauthResult, error)

// Detectors lets callers override the page-sniffing heuristics for tests
// or for a different game server's markup, without touching Session itself.
type Detectors struct {
	IsMaintenance func(body string) bool
	IsExpired     func(body string) bool
	IsStaleCSRF   func(body string) bool
}

func defaultDetectors() Detectors {
	return Detectors{
		IsMaintenance: defaultIsMaintenance,
		IsExpired:     defaultIsExpired,
		IsStaleCSRF:   defaultIsStaleCSRF,
	}
}

// Config bundles the knobs a Session is built with.
type Config struct {
	BaseURL            string // e.g. "https://s123-en.example-game.com/index.php?"
	GameHost           string
	ProxyURL           string
	RateLimitInterval  time.Duration
	NetworkBackoff     time.Duration
	MaintenanceBackoff time.Duration
	HealthPingInterval time.Duration
	RingBufferSize     int
	Detectors          *Detectors // nil uses defaultDetectors()
}

// Session is the authenticated HTTP client described by spec.md §4.5.
type Session struct {
	client   *http.Client
	baseURL  string
	gameHost string
	proxyURL string

	tokens  *tokencache.Cache
	limiter *ratelimit.Limiter
	pinger  *healthpinger.Pinger
	history *history

	detectors Detectors

	networkBackoff     time.Duration
	maintenanceBackoff time.Duration

	proxyMu     sync.Mutex
	proxyActive bool

	statusMu sync.Mutex
	status   string
	onStatus func(status string) // nil for a parent session

	isParent bool

	reauth Reauthenticator

	metrics metricsSet
}

type metricsSet struct {
	requests *prometheus.CounterVec
	reauths  prometheus.Counter
	retries  *prometheus.CounterVec
}

func newMetrics() metricsSet {
	return metricsSet{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outpost_session_requests_total",
			Help: "Outbound GameSession requests by method and outcome.",
		}, []string{"method", "outcome"}),
		reauths: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outpost_session_reauth_total",
			Help: "Re-authentications triggered by expiry detection.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outpost_session_retry_total",
			Help: "Request retries by reason.",
		}, []string{"reason"}),
	}
}

// RegisterMetrics registers the session's counters with reg. Safe to call
// with a fresh registry per process; the Monitoring menu section reads
// these back without needing a full HTTP metrics server.
func (s *Session) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.metrics.requests, s.metrics.reauths, s.metrics.retries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// New constructs a fresh parent Session: a new cookie jar, a new rate
// limiter, a health pinger that Start must be called on explicitly.
func New(cfg Config) (*Session, error) {
	client, err := httpclient.New(httpclient.Config{})
	if err != nil {
		return nil, fmt.Errorf("gamesession: build http client: %w", err)
	}

	detectors := defaultDetectors()
	if cfg.Detectors != nil {
		detectors = *cfg.Detectors
	}

	s := &Session{
		client:             client,
		baseURL:            cfg.BaseURL,
		gameHost:           cfg.GameHost,
		proxyURL:           cfg.ProxyURL,
		tokens:             tokencache.New(),
		limiter:            ratelimit.New(nonZero(cfg.RateLimitInterval, 300*time.Millisecond)),
		history:            newHistory(cfg.RingBufferSize),
		detectors:          detectors,
		networkBackoff:     nonZero(cfg.NetworkBackoff, 5*time.Minute),
		maintenanceBackoff: nonZero(cfg.MaintenanceBackoff, 10*time.Minute),
		isParent:           true,
		metrics:            newMetrics(),
	}
	s.pinger = healthpinger.New(nonZero(cfg.HealthPingInterval, 3*time.Minute), s.pingOnce)
	return s, nil
}

func nonZero(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// SetReauthenticator wires the callback used to recover from a detected
// session expiry. Must be set before Get/Post are called in a context
// where expiry is not ignored.
func (s *Session) SetReauthenticator(r Reauthenticator) {
	s.reauth = r
}

// StartHealthPinger launches the background keep-warm ping.
func (s *Session) StartHealthPinger(ctx context.Context) {
	s.pinger.Start(ctx)
}

// StopHealthPinger cancels the background keep-warm ping.
func (s *Session) StopHealthPinger() {
	s.pinger.Stop()
}

func (s *Session) pingOnce(ctx context.Context) error {
	body, _, err := s.Get(ctx, "view=updateGlobalData", nil, RequestOptions{IgnoreExpiry: true})
	if err != nil {
		return err
	}
	if s.detectors.IsExpired(body) {
		return s.reauthenticate(ctx)
	}
	return nil
}

// SetStatus updates the session's visible status. If this is not the
// parent session, onStatus (wired by the worker bootstrap to the
// ProcessRegistry) is also invoked, refreshing the heartbeat.
func (s *Session) SetStatus(status string) {
	s.statusMu.Lock()
	s.status = status
	onStatus := s.onStatus
	s.statusMu.Unlock()

	if !s.isParent && onStatus != nil {
		onStatus(status)
	}
}

// Status returns the last status set via SetStatus.
func (s *Session) Status() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// SetStatusHook wires the callback a dispatched worker uses to push status
// changes into the ProcessRegistry.
func (s *Session) SetStatusHook(fn func(status string)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.onStatus = fn
}

// MarkWorker flips the session out of parent mode, matching
// EnterBackgroundMode's "marks the session non-parent".
func (s *Session) MarkWorker() {
	s.isParent = false
}

// IsParent reports whether this session believes it is the interactive
// parent process.
func (s *Session) IsParent() bool {
	return s.isParent
}

// Tokens exposes the session's TokenCache for callers (mainly the login
// machinery) that need to read or prime it directly.
func (s *Session) Tokens() *tokencache.Cache {
	return s.tokens
}

// History returns a snapshot of the last few requests for diagnostics.
func (s *Session) History() []RequestLog {
	return s.history.Snapshot()
}

// SetProxyActive records whether the configured proxy is currently in use.
func (s *Session) SetProxyActive(active bool) {
	s.proxyMu.Lock()
	defer s.proxyMu.Unlock()
	s.proxyActive = active
}

// ProxyActive reports whether the configured proxy is currently in use.
func (s *Session) ProxyActive() bool {
	s.proxyMu.Lock()
	defer s.proxyMu.Unlock()
	return s.proxyActive
}

// RequestOptions controls one Get/Post call's behavior.
type RequestOptions struct {
	IgnoreExpiry     bool
	SkipIndex        bool // treat urlTail as an absolute URL rather than baseURL+urlTail
	WantFullResponse bool
}

// buildURL joins urlTail onto baseURL, unless skipIndex is set (spec.md
// §4.5's skip_index option), in which case urlTail is used verbatim as an
// absolute URL — used for lobby/auth endpoints that live off the game host.
func (s *Session) buildURL(urlTail string, params url.Values, skipIndex bool) string {
	target := urlTail
	if !skipIndex {
		target = s.baseURL + urlTail
	}
	if len(params) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}

// RawGet issues a single GET with no retry, expiry, or maintenance
// handling — the "raw HTTP primitive" LoginStateMachine's phases use
// (spec.md §4.6: "driven by the GameSession's raw HTTP primitives, no
// re-auth semantics yet").
func (s *Session) RawGet(ctx context.Context, urlTail string, params url.Values, skipIndex bool) (string, *http.Response, error) {
	return s.transmit(ctx, http.MethodGet, urlTail, params, nil, skipIndex)
}

// RawPost issues a single POST with no CSRF injection, retry, expiry, or
// maintenance handling.
func (s *Session) RawPost(ctx context.Context, urlTail string, payload url.Values, skipIndex bool) (string, *http.Response, error) {
	return s.transmitForm(ctx, urlTail, nil, payload, skipIndex)
}

func (s *Session) transmit(ctx context.Context, method, urlTail string, params url.Values, body io.Reader, skipIndex bool) (string, *http.Response, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", nil, err
	}

	target := s.buildURL(urlTail, params, skipIndex)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", nil, fmt.Errorf("gamesession: build request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	log := RequestLog{Method: method, URL: target, ParamKeys: sortedKeys(params), At: start, Elapsed: elapsed}
	if err != nil {
		s.history.record(log)
		s.metrics.requests.WithLabelValues(method, "network_error").Inc()
		return "", nil, agenterrors.NetworkTransient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpclient.Defaults().MaxBodyBytes))
	log.StatusCode = resp.StatusCode
	s.history.record(log)
	if err != nil {
		s.metrics.requests.WithLabelValues(method, "read_error").Inc()
		return "", resp, agenterrors.NetworkTransient(err)
	}

	s.metrics.requests.WithLabelValues(method, "ok").Inc()
	bodyStr := string(raw)
	s.tokens.TryExtract(bodyStr)
	return bodyStr, resp, nil
}

func (s *Session) transmitForm(ctx context.Context, urlTail string, params, payload url.Values, skipIndex bool) (string, *http.Response, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", nil, err
	}

	target := s.buildURL(urlTail, params, skipIndex)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", nil, fmt.Errorf("gamesession: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	log := RequestLog{Method: http.MethodPost, URL: target, ParamKeys: sortedKeys(params), PayloadKeys: sortedKeys(payload), At: start, Elapsed: elapsed}
	if err != nil {
		s.history.record(log)
		s.metrics.requests.WithLabelValues("POST", "network_error").Inc()
		return "", nil, agenterrors.NetworkTransient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpclient.Defaults().MaxBodyBytes))
	log.StatusCode = resp.StatusCode
	s.history.record(log)
	if err != nil {
		s.metrics.requests.WithLabelValues("POST", "read_error").Inc()
		return "", resp, agenterrors.NetworkTransient(err)
	}

	s.metrics.requests.WithLabelValues("POST", "ok").Inc()
	bodyStr := string(raw)
	s.tokens.TryExtract(bodyStr)
	return bodyStr, resp, nil
}

func sortedKeys(values url.Values) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

// Get issues a rate-limited GET, transparently retrying through network
// errors and maintenance windows, and recovering once from a detected
// session expiry (unless opts.IgnoreExpiry is set).
func (s *Session) Get(ctx context.Context, urlTail string, params url.Values, opts RequestOptions) (string, *http.Response, error) {
	return s.getWithRetryBudget(ctx, urlTail, params, opts, true)
}

func (s *Session) getWithRetryBudget(ctx context.Context, urlTail string, params url.Values, opts RequestOptions, allowReauth bool) (string, *http.Response, error) {
	body, resp, err := s.sendResilient(ctx, func() (string, *http.Response, error) {
		return s.transmit(ctx, http.MethodGet, urlTail, params, nil, opts.SkipIndex)
	})
	if err != nil {
		return "", nil, err
	}

	if !opts.IgnoreExpiry && s.detectors.IsExpired(body) {
		if !allowReauth {
			return "", resp, agenterrors.SessionExpired()
		}
		if err := s.reauthenticate(ctx); err != nil {
			return "", nil, err
		}
		return s.getWithRetryBudget(ctx, urlTail, params, opts, false)
	}

	return body, resp, nil
}

// Post issues a rate-limited POST, injecting the current CSRF token,
// defaulting ajax=1, and retrying once from scratch on a stale-token
// server error.
func (s *Session) Post(ctx context.Context, urlTail string, payload, params url.Values, opts RequestOptions) (string, *http.Response, error) {
	return s.postWithRetryBudget(ctx, urlTail, payload, params, opts, true, true)
}

func (s *Session) postWithRetryBudget(ctx context.Context, urlTail string, payload, params url.Values, opts RequestOptions, allowReauth, allowStaleRetry bool) (string, *http.Response, error) {
	preparedPayload := s.preparePayload(payload)
	preparedParams := s.prepareParams(params)

	body, resp, err := s.sendResilient(ctx, func() (string, *http.Response, error) {
		return s.transmitForm(ctx, urlTail, preparedParams, preparedPayload, opts.SkipIndex)
	})
	if err != nil {
		return "", nil, err
	}

	if s.detectors.IsStaleCSRF(body) {
		if !allowStaleRetry {
			return "", resp, agenterrors.StaleCsrf()
		}
		s.tokens.InvalidateCSRF()
		s.metrics.retries.WithLabelValues("stale_csrf").Inc()
		if _, _, err := s.transmit(ctx, http.MethodGet, "", nil, nil, false); err != nil {
			return "", nil, err
		}
		return s.postWithRetryBudget(ctx, urlTail, payload, params, opts, allowReauth, false)
	}

	if !opts.IgnoreExpiry && s.detectors.IsExpired(body) {
		if !allowReauth {
			return "", resp, agenterrors.SessionExpired()
		}
		if err := s.reauthenticate(ctx); err != nil {
			return "", nil, err
		}
		return s.postWithRetryBudget(ctx, urlTail, payload, params, opts, false, allowStaleRetry)
	}

	return body, resp, nil
}

func (s *Session) preparePayload(payload url.Values) url.Values {
	out := url.Values{}
	for k, v := range payload {
		out[k] = v
	}
	if out.Get("actionRequest") == "" {
		if csrf := s.tokens.CSRF(); csrf != "" {
			out.Set("actionRequest", csrf)
		}
	}
	if out.Get("ajax") == "" {
		out.Set("ajax", "1")
	}
	return out
}

func (s *Session) prepareParams(params url.Values) url.Values {
	if params == nil {
		return nil
	}
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// sendResilient wraps a single request attempt with the network-transient
// and maintenance backoff policies from spec.md §4.5: network errors sleep
// and retry indefinitely (bounded only by ctx); maintenance pages sleep
// the maintenance backoff and retry indefinitely too.
func (s *Session) sendResilient(ctx context.Context, attempt func() (string, *http.Response, error)) (string, *http.Response, error) {
	var body string
	var resp *http.Response

	err := resilience.RetryForever(ctx, s.networkBackoff, func() error {
		b, r, err := attempt()
		if err != nil {
			if agenterrors.Is(err, agenterrors.CodeNetworkTransient) {
				s.metrics.retries.WithLabelValues("network").Inc()
				return err
			}
			return resilience.Unrecoverable(err)
		}
		body, resp = b, r
		return nil
	})
	if err != nil {
		if unrecoverable, ok := resilience.AsUnrecoverable(err); ok {
			return "", nil, unrecoverable
		}
		return "", nil, err
	}

	if s.detectors.IsMaintenance(body) {
		s.metrics.retries.WithLabelValues("maintenance").Inc()
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(s.maintenanceBackoff):
		}
		return s.sendResilient(ctx, attempt)
	}

	return body, resp, nil
}

func (s *Session) reauthenticate(ctx context.Context) error {
	if s.reauth == nil {
		return agenterrors.New(agenterrors.CodeSessionExpired, "no reauthenticator configured")
	}

	s.metrics.reauths.Inc()
	result, err := s.reauth(ctx)
	if err != nil {
		return fmt.Errorf("gamesession: reauthenticate: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("gamesession: parse base url: %w", err)
	}
	s.client.Jar.SetCookies(u, result.Cookies)
	s.tokens.InvalidateCSRF()
	return nil
}

// ExportCookies serializes the session cookies needed to restore this
// session in a browser or another instance.
func (s *Session) ExportCookies() []CookieRecord {
	return cookiesToRecords(s.cookiesForBaseURL())
}

// ImportCookies installs cookies and validates them with one request,
// failing if that request trips expiry detection.
func (s *Session) ImportCookies(ctx context.Context, records []CookieRecord) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("gamesession: parse base url: %w", err)
	}
	s.client.Jar.SetCookies(u, recordsToCookies(records))

	body, _, err := s.RawGet(ctx, "view=updateGlobalData", nil, false)
	if err != nil {
		return fmt.Errorf("gamesession: validate imported cookies: %w", err)
	}
	if s.detectors.IsExpired(body) {
		return agenterrors.SessionExpired()
	}
	return nil
}

// Serialize produces the plain-data record passed into a freshly spawned
// worker (spec.md §4.5).
func (s *Session) Serialize() Record {
	return Record{
		BaseURL:  s.baseURL,
		GameHost: s.gameHost,
		Cookies:  cookiesToRecords(s.cookiesForBaseURL()),
		Tokens:   s.tokens.Export(),
		ProxyURL: s.proxyURL,
	}
}

// Deserialize reconstructs a worker-side Session from a parent's Record:
// fresh rate-limiter state, fresh mutexes, a health pinger that is not
// started, and marked non-parent.
func Deserialize(rec Record, cfg Config) (*Session, error) {
	cfg.BaseURL = rec.BaseURL
	cfg.GameHost = rec.GameHost
	cfg.ProxyURL = rec.ProxyURL

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s.isParent = false
	s.tokens.Restore(rec.Tokens)

	u, err := url.Parse(rec.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gamesession: parse base url: %w", err)
	}
	s.client.Jar.SetCookies(u, recordsToCookies(rec.Cookies))

	return s, nil
}
