// Package tokencache holds the two pieces of server-issued state every
// game request depends on: the anti-CSRF token and the player's current
// city id, both scraped out of whatever the server last sent back.
package tokencache

import (
	"regexp"
	"sync"

	"github.com/tidwall/gjson"
)

var (
	csrfFieldRe = regexp.MustCompile(`"?actionRequest"?\s*(?:[:=]|value=)\s*"([0-9]+)"`)
	cityFieldRe = regexp.MustCompile(`currentCityId\s*[:=]\s*"?(\d+)"?`)
)

// Cache holds the session's mutable CSRF token and current-city id behind
// a single mutex, matching spec.md §4.2's "two fields protected by a
// mutex" description.
type Cache struct {
	mu     sync.Mutex
	csrf   string
	cityID string
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// TryExtract scans body for an action-request token and a current-city id.
// Either, both, or neither may be found; whichever are found replace the
// cached values. It tries gjson first for the ad-hoc JSON-like AJAX
// payloads the game emits, falling back to regex for HTML pages.
func (c *Cache) TryExtract(body string) {
	csrf, csrfFound := extractCSRF(body)
	city, cityFound := extractCityID(body)

	if !csrfFound && !cityFound {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if csrfFound {
		c.csrf = csrf
	}
	if cityFound {
		c.cityID = city
	}
}

func extractCSRF(body string) (string, bool) {
	if result := gjson.Get(body, "actionRequest"); result.Exists() && result.String() != "" {
		return result.String(), true
	}
	if m := csrfFieldRe.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}

func extractCityID(body string) (string, bool) {
	if result := gjson.Get(body, "currentCityId"); result.Exists() && result.String() != "" {
		return result.String(), true
	}
	if m := cityFieldRe.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}

// CSRF returns the currently cached token, which may be empty.
func (c *Cache) CSRF() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

// CityID returns the currently cached current-city id, which may be empty.
func (c *Cache) CityID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cityID
}

// InvalidateCSRF clears the cached token, forcing the next POST's sender
// to repopulate it with a fresh GET first.
func (c *Cache) InvalidateCSRF() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrf = ""
}

// Snapshot is the plain-data form used by GameSession.Serialize.
type Snapshot struct {
	CSRF   string
	CityID string
}

// Export returns the cache's current values for serialization.
func (c *Cache) Export() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{CSRF: c.csrf, CityID: c.cityID}
}

// Restore seeds a freshly created Cache from a prior Export.
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrf = s.CSRF
	c.cityID = s.CityID
}
