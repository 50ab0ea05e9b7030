// Package version holds build metadata exposed on /version.
package version

// These are overridden at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
