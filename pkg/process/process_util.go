// Copyright (c) Microsoft Corporation. All rights reserved.

package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	ps "github.com/shirou/gopsutil/v4/process"

	"github.com/microsoft/chromedap/pkg/osutil"
	"github.com/microsoft/chromedap/pkg/slices"
)

// ErrorProcessNotFound reports that no process matches the requested PID and
// identity time. It stands in for ps.ErrorProcessNotRunning so callers do not
// have to import the ps package.
var ErrorProcessNotFound = errors.New("process does not exist")

func getIDs(handles []ProcessHandle) []Pid_t {
	return slices.Map[ProcessHandle, Pid_t](handles, func(h ProcessHandle) Pid_t {
		return h.Pid
	})
}

// GetProcessTree returns handles for the given process and all its
// descendants, breadth-first: the root, then its children, then grandchildren.
func GetProcessTree(root ProcessHandle) ([]ProcessHandle, error) {
	rootProc, err := findPsProcess(root.Pid, root.IdentityTime)
	if err != nil {
		return nil, err
	}

	tree := []ProcessHandle{}
	pending := []*ps.Process{rootProc}

	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		tree = append(tree, ProcessHandle{
			Pid:          Uint32_ToPidT(uint32(current.Pid)),
			IdentityTime: processIdentityTime(current),
		})

		children, childrenErr := current.Children()
		if childrenErr != nil {
			// A process whose children cannot be listed is treated as a leaf.
			continue
		}
		pending = append(pending, children...)
	}

	return tree, nil
}

// Run executes the command as a child process and blocks until it exits,
// returning its exit code.
//
// Cancelling the context stops the process, but Run keeps blocking until the
// process is gone and its output has been captured, so the return may not be
// prompt after cancellation.
func Run(ctx context.Context, executor Executor, cmd *exec.Cmd) (int32, error) {
	exitCh := make(chan ProcessExitInfo, 1)
	handler := NewChannelProcessExitHandler(exitCh)

	_, startWaitForProcessExit, err := executor.StartProcess(ctx, cmd, handler)
	if err != nil {
		return UnknownExitCode, err
	}

	startWaitForProcessExit()

	exitInfo := <-exitCh
	return exitInfo.ExitCode, exitInfo.Err
}

// Identity times come from the OS with millisecond precision at best, and
// repeated reads of the same process can round differently, so identity
// comparison allows a small difference.
const identityTimeMaxDifference = 2 * time.Millisecond

// ProcessIdentityTime returns the raw start time of the process, used to
// tell apart processes that reuse the same PID. The value may not line up
// with wall-clock time on every platform and is not meant for display, but
// it is stable across system clock changes.
func ProcessIdentityTime(pid Pid_t) time.Time {
	osPid, osPidErr := PidT_ToUint32(pid)
	if osPidErr != nil {
		return time.Time{}
	}

	proc, procErr := ps.NewProcess(int32(osPid))
	if procErr != nil {
		return time.Time{}
	}

	return processIdentityTime(proc)
}

func findPsProcess(pid Pid_t, expectedIdentityTime time.Time) (*ps.Process, error) {
	osPid, err := PidT_ToUint32(pid)
	if err != nil {
		return nil, err
	}

	// Looking the process up also verifies it exists, which matters even when
	// expectedIdentityTime is zero.
	proc, procErr := ps.NewProcess(int32(osPid))
	if procErr != nil {
		if errors.Is(procErr, ps.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("process with pid %d does not exist: %w", pid, ErrorProcessNotFound)
		}
		return nil, procErr
	}

	if !hasExpectedIdentityTime(proc, expectedIdentityTime) {
		actualIdentityTime := processIdentityTime(proc)

		return nil, fmt.Errorf(
			"process start time mismatch, pid might have been reused: pid %d, expected start time %s, actual start time %s",
			pid,
			expectedIdentityTime.Format(osutil.RFC3339MiliTimestampFormat),
			actualIdentityTime.Format(osutil.RFC3339MiliTimestampFormat),
		)
	}

	return proc, nil
}

// FindProcess returns the running process with the given PID. A non-zero
// expectedIdentityTime must additionally match the process start time.
func FindProcess(pid Pid_t, expectedIdentityTime time.Time) (*os.Process, error) {
	proc, err := findPsProcess(pid, expectedIdentityTime)
	if err != nil {
		return nil, err
	}

	process, err := os.FindProcess(int(proc.Pid))
	if err != nil {
		return nil, err
	}

	return process, nil
}

func IntToPidT(val int) (Pid_t, error) {
	return convertPid[int64, Pid_t](int64(val))
}

func Uint32_ToPidT(val uint32) Pid_t {
	// Every uint32 is a valid PID value (see convertPid) and fits in the int64-based Pid_t.
	return Pid_t(val)
}

func PidT_ToInt(val Pid_t) (int, error) {
	return convertPid[Pid_t, int](val)
}

func PidT_ToUint32(val Pid_t) (uint32, error) {
	return convertPid[Pid_t, uint32](val)
}

func convertPid[From ~int64 | ~uint64 | ~uint32, To ~int64 | ~int | ~uint32](val From) (To, error) {
	outOfRange := val < 0 || val > math.MaxUint32
	if outOfRange {
		return 0, fmt.Errorf("value %d is out of range of valid process ID values", val)
	}
	return To(val), nil
}

func hasExpectedIdentityTime(proc *ps.Process, expectedIdentityTime time.Time) bool {
	if expectedIdentityTime.IsZero() {
		return true
	}
	return osutil.Within(expectedIdentityTime, processIdentityTime(proc), identityTimeMaxDifference)
}

// IsEarlyProcessExitError reports whether the error just means the process
// already exited, which callers tearing a process down usually expect.
func IsEarlyProcessExitError(err error) bool {
	if err == nil {
		return false
	}

	var ee *exec.ExitError
	if errors.Is(err, os.ErrProcessDone) || errors.As(err, &ee) {
		return true
	}

	// wait() on a child can fail with ECHILD when something else (often the
	// exiting parent) already reaped it.
	var sysErr *os.SyscallError
	return errors.As(err, &sysErr) && strings.HasPrefix(sysErr.Syscall, "wait") && errors.Is(sysErr.Err, syscall.ECHILD)
}

func init() {
	// Process start times are computed relative to boot time; caching the boot
	// time keeps repeated identity reads of the same process consistent.
	ps.EnableBootTimeCache(true)
}
