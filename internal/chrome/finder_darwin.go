// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"os"
	"path/filepath"
)

func browserCandidates() []string {
	candidates := []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates,
			filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"))
	}
	candidates = append(candidates,
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	)
	return candidates
}
