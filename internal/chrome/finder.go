// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"errors"
	"os/exec"
)

// ErrExecutableNotFound indicates that no browser executable could be located.
// Clients work around it by setting runtimeExecutable in the launch
// configuration.
var ErrExecutableNotFound = errors.New("could not find a Chrome-family browser executable")

// FindBrowser locates a Chrome-family browser using the platform conventions,
// preferring Chrome proper over other Chromium-based browsers. It returns
// ErrExecutableNotFound when none of the well-known locations yields an
// executable.
func FindBrowser() (string, error) {
	for _, candidate := range browserCandidates() {
		if candidate == "" {
			continue
		}
		// LookPath doubles as an existence and executable-bit check for
		// absolute candidates.
		resolved, err := exec.LookPath(candidate)
		if err == nil {
			return resolved, nil
		}
	}
	return "", ErrExecutableNotFound
}
