// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"os"
	"path/filepath"
)

func browserCandidates() []string {
	roots := []string{
		os.Getenv("LOCALAPPDATA"),
		os.Getenv("PROGRAMFILES"),
		os.Getenv("PROGRAMFILES(X86)"),
	}

	var candidates []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		candidates = append(candidates,
			filepath.Join(root, `Google\Chrome\Application\chrome.exe`))
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		candidates = append(candidates,
			filepath.Join(root, `Microsoft\Edge\Application\msedge.exe`))
	}
	return candidates
}
