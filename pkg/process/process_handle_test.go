/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessHandleComparable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	first := NewProcessHandle(Uint32_ToPidT(100), now)
	sameAsFirst := NewProcessHandle(Uint32_ToPidT(100), now)
	other := NewProcessHandle(Uint32_ToPidT(200), now)

	assert.Equal(t, first, sameAsFirst)
	assert.NotEqual(t, first, other)

	// Handles index the executor's wait-state map.
	byHandle := map[ProcessHandle]string{
		first: "one",
		other: "two",
	}
	assert.Equal(t, "one", byHandle[sameAsFirst])
	assert.Equal(t, "two", byHandle[other])
}

func TestProcessHandleFromUnstartedCmd(t *testing.T) {
	t.Parallel()

	handle := ProcessHandleFromCmd(exec.Command("sleep", "1"))
	assert.Equal(t, UnknownPID, handle.Pid)
}
