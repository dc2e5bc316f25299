/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionDefaultsToDevelopment(t *testing.T) {
	t.Parallel()

	out := Version()
	assert.Equal(t, DevelopmentVersion, out.Version)
	assert.Empty(t, out.CommitHash)
	assert.Empty(t, out.BuildTime)
}

func TestVersionFormatsUnixBuildTimestamp(t *testing.T) {
	oldTimestamp := BuildTimestamp
	BuildTimestamp = "1748736000"
	defer func() { BuildTimestamp = oldTimestamp }()

	out := Version()
	assert.Equal(t, "2025-06-01T00:00:00Z", out.BuildTime)
}

func TestVersionAcceptsRFC3339BuildTimestamp(t *testing.T) {
	oldTimestamp := BuildTimestamp
	BuildTimestamp = "2025-06-01T08:30:00+02:00"
	defer func() { BuildTimestamp = oldTimestamp }()

	out := Version()
	assert.Equal(t, "2025-06-01T06:30:00Z", out.BuildTime)
}

func TestVersionIgnoresUnparseableBuildTimestamp(t *testing.T) {
	oldTimestamp := BuildTimestamp
	BuildTimestamp = "last tuesday"
	defer func() { BuildTimestamp = oldTimestamp }()

	out := Version()
	assert.Empty(t, out.BuildTime)
}
