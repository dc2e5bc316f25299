//go:build !windows && !darwin

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

// Distributions disagree on the binary name, so the search runs over PATH
// with the common spellings.
func browserCandidates() []string {
	return []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"microsoft-edge",
	}
}
