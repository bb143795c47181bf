// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Resolved returns Version, falling back to the module version recorded by
// `go install` when no -ldflags value was set.
func Resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func String() string {
	return fmt.Sprintf("powerctl %s (commit=%s, date=%s, go=%s)", Resolved(), Commit, Date, runtime.Version())
}

// UserAgent identifies controller requests in host logs.
func UserAgent() string {
	return "powerctl/" + Resolved()
}
