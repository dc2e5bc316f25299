/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"os/exec"
	"time"
)

// ProcessHandle identifies a process by PID plus the process start time, so
// that a handle held across the process's death cannot be confused with a new
// process that reused the PID.
//
// The IdentityTime may not be a valid wall-clock time on all platforms; on
// Linux it derives from ticks since boot, which makes it stable across system
// clock changes.
//
// ProcessHandle is a value type and is safe to use as a map key.
type ProcessHandle struct {
	Pid          Pid_t
	IdentityTime time.Time
}

func NewProcessHandle(pid Pid_t, identityTime time.Time) ProcessHandle {
	return ProcessHandle{
		Pid:          pid,
		IdentityTime: identityTime,
	}
}

// ProcessHandleFromCmd captures the handle of a started exec.Cmd. A command
// that has not been started yields a handle with UnknownPID.
func ProcessHandleFromCmd(cmd *exec.Cmd) ProcessHandle {
	if cmd.Process == nil {
		return ProcessHandle{Pid: UnknownPID}
	}

	pid := Uint32_ToPidT(uint32(cmd.Process.Pid))
	return NewProcessHandle(pid, ProcessIdentityTime(pid))
}
