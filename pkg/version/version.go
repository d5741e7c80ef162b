// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   string // Set via ldflags.
	BuildDate string // Set via ldflags.

	Revision  = revision(debug.ReadBuildInfo)
	GoVersion = runtime.Version()
)

// GetVersion returns the release version, or the VCS revision for
// development builds.
func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

// String returns the version line printed by --version.
func String() string {
	s := fmt.Sprintf("%s (revision %s, %s %s/%s)",
		GetVersion(), Revision, GoVersion, runtime.GOOS, runtime.GOARCH)
	if BuildDate != "" {
		s += ", built " + BuildDate
	}

	return s
}

func revision(readBuildInfo func() (*debug.BuildInfo, bool)) string {
	rev := "unknown"

	buildInfo, ok := readBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value
			if len(rev) > 7 {
				rev = rev[:7]
			}

		case "vcs.modified":
			modified = v.Value == "true"
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
