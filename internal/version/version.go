// Package version provides the build version of the server.
package version

import "fmt"

// Version is the semver of the current build.
var Version = "0.3.1"

// DevVersion is the suffix appended in non-prod modes.
var DevVersion = "dev"

// GetCurrentVersion returns the version string for the given mode.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return fmt.Sprintf("%s-%s", Version, DevVersion)
}
