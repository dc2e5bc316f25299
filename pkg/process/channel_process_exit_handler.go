/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

// ProcessExitInfo is the terminal status of a watched process.
type ProcessExitInfo struct {
	PID      Pid_t
	ExitCode int32
	Err      error
}

// ChannelProcessExitHandler delivers the exit notification to a channel and
// then closes it, so receiving from the channel doubles as waiting for the
// process to finish.
type ChannelProcessExitHandler struct {
	c chan ProcessExitInfo
}

func NewChannelProcessExitHandler(c chan ProcessExitInfo) *ChannelProcessExitHandler {
	return &ChannelProcessExitHandler{c: c}
}

func (eh *ChannelProcessExitHandler) OnProcessExited(pid Pid_t, exitCode int32, err error) {
	eh.c <- ProcessExitInfo{PID: pid, ExitCode: exitCode, Err: err}
	close(eh.c)
}
