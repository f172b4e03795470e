package gamesession

import (
	"net/http"
	"net/url"
	"time"

	"github.com/outpostctl/outpost/internal/tokencache"
)

// CookieRecord is the plain-data form of an http.Cookie, used both for
// Serialize/Deserialize (worker handoff) and ExportCookies/ImportCookies
// (browser handoff).
type CookieRecord struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// Record is the plain-data snapshot of a GameSession handed from a parent
// process to a freshly spawned worker (spec.md §4.5 Serialize/Deserialize).
// It deliberately carries no OS-level client state: the worker rebuilds
// its own *http.Client, rate limiter, and health pinger from scratch.
type Record struct {
	BaseURL  string              `json:"base_url"`
	GameHost string              `json:"game_host"`
	Cookies  []CookieRecord      `json:"cookies"`
	Tokens   tokencache.Snapshot `json:"tokens"`
	ProxyURL string              `json:"proxy_url,omitempty"`
}

func cookiesToRecords(cookies []*http.Cookie) []CookieRecord {
	out := make([]CookieRecord, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, CookieRecord{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Expires: c.Expires, Secure: c.Secure, HTTPOnly: c.HttpOnly,
		})
	}
	return out
}

func recordsToCookies(records []CookieRecord) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(records))
	for _, r := range records {
		out = append(out, &http.Cookie{
			Name: r.Name, Value: r.Value, Domain: r.Domain, Path: r.Path,
			Expires: r.Expires, Secure: r.Secure, HttpOnly: r.HTTPOnly,
		})
	}
	return out
}

func (s *Session) cookiesForBaseURL() []*http.Cookie {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil
	}
	return s.client.Jar.Cookies(u)
}
