// Package version holds build-time identifiers, set by linker flags
// (adapted from the teacher's pkg/version).
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// FullVersion returns the full version string for the CLI's --version flag.
func FullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// UserAgent returns the HTTP User-Agent this agent identifies itself with.
func UserAgent() string {
	return fmt.Sprintf("outpost/%s", Version)
}
