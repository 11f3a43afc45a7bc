// Copyright IBM Corp. 2018, 2025
// SPDX-License-Identifier: MPL-2.0

package version

import "fmt"

var (
	Version           = "0.1.0"
	VersionPrerelease = "dev"
	VersionMetadata   = ""
)

// String returns the full version string, including any prerelease
// and metadata parts.
func String() string {
	v := Version
	if VersionPrerelease != "" {
		v = fmt.Sprintf("%s-%s", v, VersionPrerelease)
	}
	if VersionMetadata != "" {
		v = fmt.Sprintf("%s+%s", v, VersionMetadata)
	}
	return v
}
