package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaultTimeout(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, Defaults().Timeout, client.Timeout)
}

func TestNewHonorsExplicitTimeout(t *testing.T) {
	client, err := New(Config{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestNewClientPersistsCookiesAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err == nil {
			w.Header().Set("X-Echo", cookie.Value)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
	}))
	defer srv.Close()

	client, err := New(Config{})
	require.NoError(t, err)

	resp1, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp1.Body.Close()

	resp2, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, "abc123", resp2.Header.Get("X-Echo"))
}

func TestNewClientStartsWithEmptyJar(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, client.Jar)

	u, err := url.Parse("https://example.invalid")
	require.NoError(t, err)
	assert.Empty(t, client.Jar.Cookies(u))
}

func TestResolveMaxBodyBytesFallsBackToDefault(t *testing.T) {
	assert.Equal(t, Defaults().MaxBodyBytes, ResolveMaxBodyBytes(0))
	assert.Equal(t, int64(1024), ResolveMaxBodyBytes(1024))
}
