// Package version provides build version information for the application.
// A separate package so both cmd and cli can import it without cycles.
package version

// Version is the build version string, set by ldflags during release builds.
var Version = "v0.3.0-dev"

// BuildTime is the build timestamp, set by ldflags.
var BuildTime = "unknown"
