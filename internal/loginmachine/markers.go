package loginmachine

import "regexp"

var (
	envIDRe        = regexp.MustCompile(`gameEnvironmentId["']?\s*[:=]\s*["']([a-zA-Z0-9_-]+)["']`)
	platformIDRe   = regexp.MustCompile(`platformGameId["']?\s*[:=]\s*["']([a-zA-Z0-9_-]+)["']`)
	attentionRe    = regexp.MustCompile(`(?i)attention required|checking your browser`)
	vacationRe     = regexp.MustCompile(`(?i)vacation\s*mode`)
	logoutMarkerRe = regexp.MustCompile(`index\.php\?logout|<a class="logout"`)
	gameServerRe   = regexp.MustCompile(`https://s(\d+)-([a-z]{2})\.[a-zA-Z0-9.-]+/index\.php`)
)

const otpRequiredMarker = "OTP_REQUIRED"
const challengeHeader = "Gf-Challenge-Id"
const solvedMarker = "solved"
