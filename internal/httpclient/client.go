// Package httpclient builds the *http.Client a GameSession wraps: a fixed
// timeout, a modern TLS floor, and a cookie jar so the server's session
// cookie survives across requests without GameSession managing it by hand.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Config controls client construction. Zero values fall back to Defaults.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Defaults mirrors the conservative baseline the teacher's client-construction
// helper applies before any call site overrides it.
func Defaults() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 4 << 20, // 4MiB, generous enough for a game HTML page
	}
}

// New builds an *http.Client with a cookie jar and a TLS-1.2-floor
// transport. The jar is what lets a session authenticate once and have the
// PHP session cookie ride along on every subsequent request.
func New(cfg Config) (*http.Client, error) {
	defaults := Defaults()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Jar:       jar,
		Transport: transportWithMinTLS12(),
	}, nil
}

// transportWithMinTLS12 clones http.DefaultTransport (when possible) and
// enforces a TLS 1.2 floor for outbound calls to the game server.
func transportWithMinTLS12() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}

	cloned := base.Clone()
	if cloned.TLSClientConfig != nil {
		cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
		if cloned.TLSClientConfig.MinVersion == 0 || cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
		}
	} else {
		cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return cloned
}

// ResolveMaxBodyBytes returns the effective response-body cap, falling back
// to Defaults().MaxBodyBytes when cfg is unset.
func ResolveMaxBodyBytes(cfg int64) int64 {
	if cfg <= 0 {
		return Defaults().MaxBodyBytes
	}
	return cfg
}
