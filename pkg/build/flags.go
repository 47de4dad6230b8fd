// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags:
//
//	go build -ldflags "-X ducker/pkg/build.buildName=ducker -X ducker/pkg/build.buildVersion=0.1.0 ..."
package build

import "fmt"

// DefaultDescription is used when no description is injected.
const DefaultDescription = "Duck music and game audio while the mic is live"

// Info is the build information embedded in the binary.
type Info struct {
	Name        string
	Time        string
	Commit      string
	Version     string
	Description string
}

// String formats the info as a one-line version banner.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName        string
	buildTime        string
	buildCommit      string
	buildVersion     string
	buildDescription string
	buildFlags       = &Info{
		Name:        "ducker",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
		Description: DefaultDescription,
	}
)

// Initialize validates and copies build information from ldflags variables
// into the package info. Returns an error if any required build flag is
// missing; the description is optional. On error the development defaults
// stay in place, so callers may log the error and carry on.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion
	if buildDescription != "" {
		buildFlags.Description = buildDescription
	}

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
