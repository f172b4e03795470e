package loginmachine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/redact"
)

func (m *Machine) rawGet(ctx context.Context, target string, headers map[string]string) (string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("loginmachine: build GET %s: %w", target, err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return m.do(req)
}

func (m *Machine) rawPostJSON(ctx context.Context, target string, payload map[string]any, headers map[string]string) (string, *http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("loginmachine: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("loginmachine: build POST %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return m.do(req)
}

func (m *Machine) rawPostForm(ctx context.Context, target string, form url.Values) (string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, fmt.Errorf("loginmachine: build POST %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	return m.do(req)
}

func (m *Machine) do(req *http.Request) (string, *http.Response, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return "", nil, agenterrors.NetworkTransient(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", resp, agenterrors.NetworkTransient(err)
	}
	return string(raw), resp, nil
}

func (m *Machine) setLobbyCookie(name, value string) {
	u, err := url.Parse(m.cfg.Endpoints.LobbyURL)
	if err != nil {
		return
	}
	m.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// phase0CachedFastPath probes the "me" endpoint with the cached auth
// token; a 200 in this narrow window skips straight to phase 8.
func (m *Machine) phase0CachedFastPath(ctx context.Context, st *attemptState) (bool, error) {
	if st.acct.CachedAuthToken == "" {
		return false, nil
	}
	m.setLobbyCookie("gf-token-production", st.acct.CachedAuthToken)

	_, resp, err := m.rawGet(ctx, m.cfg.Endpoints.LobbyMeURL, nil)
	if err != nil {
		return false, nil // fall through to the full pipeline on any probe failure
	}
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	st.authToken = st.acct.CachedAuthToken
	st.deviceToken = st.acct.CachedDeviceToken
	return true, nil
}

// phase1EnvironmentIDs extracts gameEnvironmentId and platformGameId from
// the lobby's config JS via named regex.
func (m *Machine) phase1EnvironmentIDs(ctx context.Context, st *attemptState) error {
	body, _, err := m.rawGet(ctx, m.cfg.Endpoints.LobbyConfigJS, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase1: fetch lobby config", err)
	}

	envMatch := envIDRe.FindStringSubmatch(body)
	platformMatch := platformIDRe.FindStringSubmatch(body)
	if envMatch == nil || platformMatch == nil {
		return agenterrors.LoginFailed("phase1: gameEnvironmentId or platformGameId not found", nil)
	}
	st.gameEnvironmentID = envMatch[1]
	st.platformGameID = platformMatch[1]
	return nil
}

// phase2AntiBotHandshake populates Cloudflare-style tracking cookies by
// hitting the connect endpoints twice; an "attention required" page means
// the anti-bot layer blocked us outright.
func (m *Machine) phase2AntiBotHandshake(ctx context.Context, st *attemptState) error {
	for _, target := range []string{m.cfg.Endpoints.CloudflareConfig, m.cfg.Endpoints.CloudflareConnect} {
		if target == "" {
			continue
		}
		body, _, err := m.rawGet(ctx, target, nil)
		if err != nil {
			return agenterrors.LoginFailed("phase2: anti-bot handshake", err)
		}
		if attentionRe.MatchString(body) {
			return agenterrors.AntiBotBlocked()
		}
	}
	return nil
}

// phase3DeviceFingerprint POSTs a synthetic fingerprint payload twice.
// Errors are logged and ignored (spec.md §4.6: "non-fatal").
func (m *Machine) phase3DeviceFingerprint(ctx context.Context, st *attemptState) {
	if m.cfg.Endpoints.FingerprintURL == "" {
		return
	}
	payload := map[string]any{
		"gsid": fmt.Sprintf("%d", time.Now().UnixNano()),
		"tnt":  st.acct.Username,
	}
	for i := 0; i < 2; i++ {
		if _, _, err := m.rawPostJSON(ctx, m.cfg.Endpoints.FingerprintURL, payload, nil); err != nil {
			m.log.WithField("error", redact.Error(err)).Debug("phase3: fingerprint ping failed, continuing")
		}
	}
}

// phase4CORSPreflight issues the OPTIONS preflight the browser would send
// ahead of the real credential POST.
func (m *Machine) phase4CORSPreflight(ctx context.Context, st *attemptState) error {
	if m.cfg.Endpoints.AuthOptionsURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, m.cfg.Endpoints.AuthOptionsURL, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase4: build preflight", err)
	}
	if _, _, err := m.do(req); err != nil {
		return agenterrors.LoginFailed("phase4: preflight request", err)
	}
	return nil
}

// phase5Authenticate submits credentials, branching into the OTP subphase
// on a 409/OTP_REQUIRED response and into phase6Captcha when the server
// issues a Gf-Challenge-Id header.
func (m *Machine) phase5Authenticate(ctx context.Context, st *attemptState) error {
	return m.authenticate(ctx, st, "")
}

func (m *Machine) authenticate(ctx context.Context, st *attemptState, challengeID string) error {
	payload := map[string]any{
		"identity":          st.acct.Username,
		"password":          st.acct.Password,
		"locale":            "en-GB",
		"gfLang":            "en",
		"gameId":            st.platformGameID,
		"gameEnvironmentId": st.gameEnvironmentID,
		"blackbox":          syntheticBlackbox(st.acct.Username),
	}

	headers := map[string]string{}
	if challengeID != "" {
		headers[challengeHeader] = challengeID
	}

	body, resp, err := m.rawPostJSON(ctx, m.cfg.Endpoints.AuthSessionURL, payload, headers)
	if err != nil {
		return agenterrors.LoginFailed("phase5: authenticate", err)
	}

	if resp.StatusCode == http.StatusConflict && strings.Contains(body, otpRequiredMarker) {
		return m.handleOTP(ctx, st, payload)
	}

	if id := resp.Header.Get(challengeHeader); id != "" {
		return m.phase6Captcha(ctx, st, id)
	}

	token := gjson.Get(body, "token")
	if !token.Exists() || token.String() == "" {
		return agenterrors.LoginFailed("phase5: no token in auth response", nil)
	}
	st.authToken = token.String()
	st.deviceToken, _ = payload["blackbox"].(string)
	return nil
}

func (m *Machine) handleOTP(ctx context.Context, st *attemptState, payload map[string]any) error {
	if !m.cfg.Interactive || m.cfg.Prompter == nil {
		return agenterrors.NotInteractive()
	}
	code, err := m.cfg.Prompter.ReadLine(ctx, "Enter your 2FA code: ")
	if err != nil {
		return agenterrors.LoginFailed("phase5: read 2FA code", err)
	}
	payload["otpCode"] = strings.TrimSpace(code)

	body, resp, err := m.rawPostJSON(ctx, m.cfg.Endpoints.AuthSessionURL, payload, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase5: resubmit with 2FA", err)
	}
	if id := resp.Header.Get(challengeHeader); id != "" {
		return m.phase6Captcha(ctx, st, id)
	}
	token := gjson.Get(body, "token")
	if !token.Exists() || token.String() == "" {
		return agenterrors.LoginFailed("phase5: no token after 2FA", nil)
	}
	st.authToken = token.String()
	st.deviceToken, _ = payload["blackbox"].(string)
	return nil
}

// phase6Captcha solves the icon-matching captcha up to CaptchaRetries
// times, resubmitting phase5 with the challenge id once the verify
// endpoint reports an answer as solved.
func (m *Machine) phase6Captcha(ctx context.Context, st *attemptState, challengeID string) error {
	if m.cfg.CaptchaSolver == nil {
		return agenterrors.CaptchaUnsolvable()
	}

	for attempt := 0; attempt < m.cfg.CaptchaRetries; attempt++ {
		textImg, _, err := m.rawGet(ctx, m.cfg.Endpoints.CaptchaImageBase+"/text?id="+challengeID, nil)
		if err != nil {
			continue
		}
		iconsImg, _, err := m.rawGet(ctx, m.cfg.Endpoints.CaptchaImageBase+"/drag-icons?id="+challengeID, nil)
		if err != nil {
			continue
		}

		answer, err := m.cfg.CaptchaSolver.Solve(ctx, []byte(textImg), []byte(iconsImg))
		if err != nil {
			continue
		}

		form := url.Values{"id": {challengeID}, "answer": {fmt.Sprintf("%d", answer)}}
		body, _, err := m.rawPostForm(ctx, m.cfg.Endpoints.CaptchaImageBase+"/verify", form)
		if err != nil {
			continue
		}
		if strings.Contains(body, solvedMarker) {
			return m.authenticate(ctx, st, challengeID)
		}
	}
	return agenterrors.CaptchaUnsolvable()
}

// phase7TokenExtraction sets the auth token as a cookie and re-verifies it
// with the same probe phase 0 uses. A missing token falls back to an
// interactive manual-entry prompt.
func (m *Machine) phase7TokenExtraction(ctx context.Context, st *attemptState) error {
	if st.authToken == "" {
		if !m.cfg.Interactive || m.cfg.Prompter == nil {
			return agenterrors.NotInteractive()
		}
		token, err := m.cfg.Prompter.ReadLine(ctx, "Enter gf-token-production manually: ")
		if err != nil {
			return agenterrors.LoginFailed("phase7: read manual token", err)
		}
		st.authToken = strings.TrimSpace(token)
	}

	m.setLobbyCookie("gf-token-production", st.authToken)

	_, resp, err := m.rawGet(ctx, m.cfg.Endpoints.LobbyMeURL, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase7: verify token", err)
	}
	if resp.StatusCode != http.StatusOK {
		return agenterrors.LoginFailed("phase7: token verification probe failed", nil)
	}
	return nil
}

type lobbyAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Blocked bool   `json:"blocked"`
	Server  struct {
		Number   int    `json:"number"`
		Language string `json:"language"`
	} `json:"server"`
}

type lobbyServer struct {
	Number      int    `json:"number"`
	Language    string `json:"language"`
	DisplayName string `json:"name"`
}

// phase8WorldSelection fetches the account and server lists, filters
// blocked accounts, and matches the account's pre-selected world or
// (non-interactively) defaults to the first eligible one.
func (m *Machine) phase8WorldSelection(ctx context.Context, st *attemptState) error {
	accBody, _, err := m.rawGet(ctx, m.cfg.Endpoints.LobbyAccountsURL, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase8: fetch accounts", err)
	}
	srvBody, _, err := m.rawGet(ctx, m.cfg.Endpoints.LobbyServersURL, nil)
	if err != nil {
		return agenterrors.LoginFailed("phase8: fetch servers", err)
	}

	var accounts []lobbyAccount
	if err := json.Unmarshal([]byte(accBody), &accounts); err != nil {
		return agenterrors.LoginFailed("phase8: parse accounts", err)
	}
	var servers []lobbyServer
	_ = json.Unmarshal([]byte(srvBody), &servers)

	eligible := make([]lobbyAccount, 0, len(accounts))
	for _, a := range accounts {
		if !a.Blocked {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return agenterrors.LoginFailed("phase8: no eligible accounts", nil)
	}

	chosen := pickAccount(eligible, st.acct.DefaultWorld)
	if chosen == nil {
		if m.cfg.Interactive && m.cfg.Prompter != nil {
			labels := make([]string, len(eligible))
			for i, a := range eligible {
				labels[i] = fmt.Sprintf("s%d-%s: %s", a.Server.Number, a.Server.Language, a.Name)
			}
			idx, err := m.cfg.Prompter.Choose(ctx, "Select a world", labels)
			if err != nil {
				return agenterrors.LoginFailed("phase8: choose world", err)
			}
			chosen = &eligible[idx]
		} else {
			chosen = &eligible[0]
		}
	}

	st.playerName = chosen.Name
	st.characterID = chosen.ID
	st.worldID.Number = chosen.Server.Number
	st.worldID.LanguageCode = chosen.Server.Language
	st.worldDisplayName = st.worldID.String()
	for _, srv := range servers {
		if srv.Number == chosen.Server.Number && srv.Language == chosen.Server.Language {
			st.worldDisplayName = srv.DisplayName
			break
		}
	}
	return nil
}

func pickAccount(eligible []lobbyAccount, preselected *account.WorldId) *lobbyAccount {
	if preselected == nil {
		return nil
	}
	for i, a := range eligible {
		if a.Server.Number == preselected.Number && a.Server.Language == preselected.LanguageCode {
			return &eligible[i]
		}
	}
	return nil
}

// phase9GameWorldHandoff exchanges the device token for a signed
// game-server URL, then fetches the initial page HTML from it.
func (m *Machine) phase9GameWorldHandoff(ctx context.Context, st *attemptState) error {
	form := url.Values{
		"deviceToken": {st.deviceToken},
		"accountId":   {st.characterID},
		"gameId":      {st.platformGameID},
	}
	body, _, err := m.rawPostForm(ctx, m.cfg.Endpoints.LoginLinkURL, form)
	if err != nil {
		return agenterrors.LoginFailed("phase9: world entry", err)
	}

	signedURL := gjson.Get(body, "url").String()
	if signedURL == "" {
		signedURL = strings.TrimSpace(body)
	}
	match := gameServerRe.FindStringSubmatch(signedURL)
	if match == nil {
		return agenterrors.LoginFailed("phase9: signed URL does not match game-server pattern", nil)
	}

	headers := map[string]string{"User-Agent": m.cfg.UserAgent}
	html, _, err := m.rawGet(ctx, signedURL, headers)
	if err != nil {
		return agenterrors.LoginFailed("phase9: fetch game world", err)
	}

	u, err := url.Parse(signedURL)
	if err != nil {
		return agenterrors.LoginFailed("phase9: parse signed URL", err)
	}
	st.gameHost = u.Host
	st.urlBase = u.Scheme + "://" + u.Host + "/index.php?"
	st.initialPageHTML = html
	st.requestHeaders = headers
	st.cookies = m.client.Jar.Cookies(u)
	return nil
}

// phase10Validation inspects the handed-off HTML for vacation mode
// (terminal) or an already-expired session (retryable).
func (m *Machine) phase10Validation(st *attemptState) error {
	if vacationRe.MatchString(st.initialPageHTML) {
		return agenterrors.VacationMode()
	}
	if logoutMarkerRe.MatchString(st.initialPageHTML) {
		return agenterrors.LoginFailed("phase10: session already expired at handoff", nil)
	}
	return nil
}

func syntheticBlackbox(seed string) string {
	return fmt.Sprintf("tra:%x", []byte(seed+fmt.Sprint(time.Now().UnixNano())))
}
