package version

import (
	"strings"
)

// Injected via ldflags during the build
var (
	version = "unversioned"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// MajorVersion returns only the first component of the version
// or the whole version string when it's not a semantic version
func MajorVersion() string {
	v := strings.TrimPrefix(version, "v")
	major, _, found := strings.Cut(v, ".")
	if !found {
		return v
	}

	return major
}
