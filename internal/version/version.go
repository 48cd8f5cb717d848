package version

import "strings"

// Injected at build time via -ldflags "-X .../internal/version.version=...".
var version = "dev"

// String reports the build version of the running binary.
func String() string {
	return version
}

// ForTesting swaps the version string and returns a restore function.
// Not safe for concurrent use.
func ForTesting(v string) func() {
	prev := version
	version = v
	return func() { version = prev }
}

// FormatVersion normalises a version for display, adding the "v" prefix to
// release versions and leaving "dev" and empty strings untouched.
func FormatVersion(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
