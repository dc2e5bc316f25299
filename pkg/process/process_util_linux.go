//go:build linux

// Copyright (c) Microsoft Corporation. All rights reserved.

package process

import (
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
)

// Creation time reads have proved unreliable on Linux, particularly inside
// containers, so identity checks there fall back to the PID alone.
func processIdentityTime(proc *ps.Process) time.Time {
	return time.Time{}
}
