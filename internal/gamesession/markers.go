package gamesession

import (
	"regexp"
	"strings"
)

// StaleRequestIDMarker is the literal error code the game server returns
// when a submitted CSRF token no longer matches its own (spec.md §4.5:
// "on stale-token server error (WRONG_REQUEST_ID)").
const StaleRequestIDMarker = "WRONG_REQUEST_ID"

var (
	defaultMaintenanceRe = regexp.MustCompile(`(?i)undergoing\s+maintenance`)
	defaultExpiredRe     = regexp.MustCompile(`(?i)session\s+(has\s+)?expired|please\s+log\s+in\s+again`)
)

func defaultIsMaintenance(body string) bool {
	return defaultMaintenanceRe.MatchString(body)
}

func defaultIsExpired(body string) bool {
	return defaultExpiredRe.MatchString(body)
}

func defaultIsStaleCSRF(body string) bool {
	return strings.Contains(body, StaleRequestIDMarker)
}
