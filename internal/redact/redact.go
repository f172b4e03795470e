// Package redact scrubs credentials and session material out of text
// before it reaches a log line, adapted from the teacher's
// infrastructure/security sanitizer and narrowed to the secrets this agent
// actually handles: game auth/device tokens, account passwords, and
// cookies, rather than the teacher's broader API-key/JWT/credit-card set.
package redact

import (
	"regexp"
)

type pattern struct {
	re   *regexp.Regexp
	mask string
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)(password|passwd|secret)\s*[:=]\s*['"]?([^'"\s&]{3,})['"]?`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(auth[_-]?token|device[_-]?token|gameauth|access[_-]?token)\s*[:=]\s*['"]?([A-Za-z0-9_\-\.]{8,})['"]?`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(cookie|set-cookie)\s*:\s*[^\n]+`), "$1: [REDACTED]"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{8,}`), "Bearer [REDACTED]"},
}

// String scrubs known secret shapes out of s.
func String(s string) string {
	if s == "" {
		return s
	}
	result := s
	for _, p := range patterns {
		result = p.re.ReplaceAllString(result, p.mask)
	}
	return result
}

// Error returns err's message with secrets scrubbed, safe to attach to a
// log field even when err wraps a raw HTTP response body.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
