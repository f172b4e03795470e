package gamesession

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/agenterrors"
)

func newTestSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	s, err := New(Config{
		BaseURL:           baseURL,
		RateLimitInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return s
}

// TestPostRefreshesCSRFOnceBeforeRetry is end-to-end scenario 4 and
// invariant 2: on a stale-token server error the session must invalidate
// the cached CSRF token, re-fetch it with a GET, and retry the POST
// exactly once with the fresh token.
func TestPostRefreshesCSRFOnceBeforeRetry(t *testing.T) {
	var gets, posts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gets, 1)
		fmt.Fprint(w, `{"actionRequest":"fresh-token"}`)
	})
	mux.HandleFunc("/action", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		require.NoError(t, r.ParseForm())
		if r.FormValue("actionRequest") != "fresh-token" {
			fmt.Fprint(w, "WRONG_REQUEST_ID")
			return
		}
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSession(t, srv.URL)

	body, _, err := s.Post(context.Background(), "/action", url.Values{"x": {"1"}}, nil, RequestOptions{IgnoreExpiry: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gets))
	assert.Equal(t, int32(2), atomic.LoadInt32(&posts))
	assert.Equal(t, "fresh-token", s.Tokens().CSRF())
}

// TestPostFailsAfterSecondStaleCSRF confirms the retry budget is spent: a
// server that keeps rejecting the token even after the refresh GET returns
// a StaleCsrf error rather than looping forever.
func TestPostFailsAfterSecondStaleCSRF(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"actionRequest":"fresh-token"}`)
	})
	mux.HandleFunc("/action", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "WRONG_REQUEST_ID")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSession(t, srv.URL)

	_, _, err := s.Post(context.Background(), "/action", nil, nil, RequestOptions{IgnoreExpiry: true})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.CodeStaleCsrf))
}

// TestGetReauthenticatesExactlyOnce is invariant 3: a detected session
// expiry triggers exactly one re-auth attempt per call, never an
// unbounded retry loop, even if the server still reports expiry
// afterwards.
func TestGetReauthenticatesExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "your session has expired")
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)

	var reauths int32
	s.SetReauthenticator(func(ctx context.Context) (*ReauthResult, error) {
		atomic.AddInt32(&reauths, 1)
		return &ReauthResult{Cookies: nil}, nil
	})

	_, _, err := s.Get(context.Background(), "/view", nil, RequestOptions{})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.CodeSessionExpired))
	assert.Equal(t, int32(1), atomic.LoadInt32(&reauths))
}

// TestGetRecoversAfterReauth confirms the happy path: one reauth followed
// by a server that now reports a logged-in page succeeds without error.
func TestGetRecoversAfterReauth(t *testing.T) {
	var expired int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&expired) == 1 {
			fmt.Fprint(w, "please log in again")
			return
		}
		fmt.Fprint(w, "<html>welcome back</html>")
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	s.SetReauthenticator(func(ctx context.Context) (*ReauthResult, error) {
		atomic.StoreInt32(&expired, 0)
		return &ReauthResult{Cookies: nil}, nil
	})

	body, _, err := s.Get(context.Background(), "/view", nil, RequestOptions{})
	require.NoError(t, err)
	assert.Contains(t, body, "welcome back")
}
