package main

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set with -ldflags "-X main.Version=..." by release builds. Unset values are
// filled from the embedded build info.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

func Description() string {
	return fmt.Sprintf("Serial controller-emulator bridge\n  Version: %s (%s, %s)", Version, Commit, Date)
}

func init() {
	info, _ := debug.ReadBuildInfo()
	if info != nil {
		if Version == "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
		if Commit == "" {
			Commit = shortRevision(vcsSetting(info, "vcs.revision"))
		}
		if Date == "" {
			Date = vcsDate(vcsSetting(info, "vcs.time"))
		}
	}
	Version = fallback(Version, "dev")
	Commit = fallback(Commit, "unknown")
	Date = fallback(Date, "unknown")
}

func vcsSetting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func vcsDate(v string) string {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Format("2006-01-02")
	}
	return v
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
