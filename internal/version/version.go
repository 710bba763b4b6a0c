// Package version carries build identification, populated via ldflags.
package version

var (
	// Version is the release tag, or the fallback below for local builds.
	Version = "v0.1.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
