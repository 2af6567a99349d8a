// Package buildinfo carries release metadata stamped at link time:
//
//	go build -ldflags "-X github.com/m3rciful/grinbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/grinbot/core/buildinfo.Commit=abcdef0 \
//	  -X github.com/m3rciful/grinbot/core/buildinfo.Date=2026-01-02T15:04:05Z"
//
// Unstamped builds fall back to the VCS data the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var fillOnce sync.Once

// Resolved returns version, commit and build time, consulting the embedded
// VCS settings for whatever was not stamped.
func Resolved() (version, commit, date string) {
	fillOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "" {
					Commit = s.Value
				}
			case "vcs.time":
				if Date == "" {
					Date = s.Value
				}
			}
		}
	})
	if len(Commit) > 12 {
		return Version, Commit[:12], Date
	}
	return Version, Commit, Date
}

// String formats the build for "grinbot version".
func String() string {
	v, c, d := Resolved()
	if c == "" {
		c = "unknown"
	}
	if d == "" {
		return fmt.Sprintf("grinbot %s (%s)", v, c)
	}
	return fmt.Sprintf("grinbot %s (%s, built %s)", v, c, d)
}
