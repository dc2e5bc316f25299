/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"strconv"
	"time"
)

const DevelopmentVersion = "dev"

// Stamped at build time via
// -ldflags "-X github.com/microsoft/chromedap/internal/version.ProductVersion=...".
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

// Output is the version report printed by `chromedap version`, as JSON.
type Output struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
	BuildTime  string `json:"buildTimestamp,omitempty"`
}

// Version reports the build identity. BuildTimestamp accepts a unix timestamp
// in seconds or an RFC 3339 time, whichever the build system finds easier to
// produce; anything else is omitted from the report.
func Version() Output {
	buildTime := ""
	if BuildTimestamp != "" {
		if seconds, err := strconv.ParseInt(BuildTimestamp, 10, 64); err == nil {
			buildTime = time.Unix(seconds, 0).UTC().Format(time.RFC3339)
		} else if parsed, parseErr := time.Parse(time.RFC3339, BuildTimestamp); parseErr == nil {
			buildTime = parsed.UTC().Format(time.RFC3339)
		}
	}

	productVersion := ProductVersion
	if productVersion == "" {
		productVersion = DevelopmentVersion
	}

	return Output{
		Version:    productVersion,
		CommitHash: CommitHash,
		BuildTime:  buildTime,
	}
}
