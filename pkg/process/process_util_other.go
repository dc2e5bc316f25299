//go:build !linux

// Copyright (c) Microsoft Corporation. All rights reserved.

package process

import (
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
)

func processIdentityTime(proc *ps.Process) time.Time {
	createTimestamp, err := proc.CreateTime()
	if err != nil {
		// Without a creation time the handle still works, minus the
		// protection against PID reuse.
		return time.Time{}
	}

	return time.UnixMilli(createTimestamp)
}
