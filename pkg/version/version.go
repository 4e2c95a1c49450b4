// Package version exposes build information injected by GoReleaser.
package version

import (
	"fmt"
	"strings"
)

// These values are injected at build time by GoReleaser.
var (
	version    = "0.0.0"
	commitHash = ""
	buildDate  = ""
)

// IsDevelopment reports whether this is a local or snapshot build.
func IsDevelopment() bool {
	return version == "0.0.0" || strings.Contains(version, "SNAPSHOT")
}

func GetVersionNumber() string {
	return version
}

func GetCommitHash() string {
	return commitHash
}

func GetBuildDate() string {
	return buildDate
}

// Summary is the multi-line text printed by the version flag.
func Summary() string {
	return fmt.Sprintf("reaper\nVersion: %s\nGitCommit: %s\nBuildDate: %s\n",
		GetVersionNumber(), GetCommitHash(), GetBuildDate())
}
