//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/chromedap/pkg/testutil"
)

func TestRunCompleted(t *testing.T) {
	t.Parallel()

	executor := NewOSExecutor(testutil.NewLogForTesting("process-test"))
	testCtx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	// The command exits immediately with code 12.
	cmd := exec.Command("/bin/sh", "-c", "exit 12")
	exitCode, err := Run(testCtx, executor, cmd)

	require.NoError(t, err, "Program execution failed unexpectedly")
	require.Equal(t, int32(12), exitCode, "Program exit code was not captured properly")
}

// Tests that the process is terminated when the context that was used to start it is cancelled.
func TestRunCancelled(t *testing.T) {
	t.Parallel()

	executor := NewOSExecutor(testutil.NewLogForTesting("process-test"))

	// Command returns on its own after 30 seconds. This prevents the test from hanging.
	cmd := exec.Command("/bin/sleep", "30")

	exitInfoChan := make(chan ProcessExitInfo, 1)
	var onProcessExited ProcessExitHandlerFunc = func(pid Pid_t, exitCode int32, err error) {
		exitInfoChan <- ProcessExitInfo{PID: pid, ExitCode: exitCode, Err: err}
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	handle, startWaitForExit, err := executor.StartProcess(ctx, cmd, onProcessExited)
	require.NoError(t, err, "Process failed to start")
	require.Greater(t, handle.Pid, Pid_t(0))
	startWaitForExit()

	start := time.Now()
	cancelFn()

	select {
	case exitInfo := <-exitInfoChan:
		require.True(t, errors.Is(exitInfo.Err, context.Canceled))
	case <-time.After(15 * time.Second):
		t.Fatal("no exit notification received")
	}

	if elapsed := time.Since(start); elapsed > 12*time.Second {
		t.Fatal("process termination took too long after cancellation")
	}
}

func TestStopProcess(t *testing.T) {
	t.Parallel()

	executor := NewOSExecutor(testutil.NewLogForTesting("process-test"))
	testCtx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	// Command returns on its own after 30 seconds so a test failure does not leak it for long.
	cmd := exec.Command("/bin/sleep", "30")

	handle, startWaitForExit, err := executor.StartProcess(testCtx, cmd, nil)
	require.NoError(t, err)
	startWaitForExit()

	err = executor.StopProcess(handle)
	require.NoError(t, err)

	ensureStopped(t, handle.Pid, 5*time.Second)
}

func TestStopProcessIdentityMismatch(t *testing.T) {
	t.Parallel()

	executor := NewOSExecutor(testutil.NewLogForTesting("process-test"))
	testCtx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	cmd := exec.Command("/bin/sleep", "30")

	handle, startWaitForExit, err := executor.StartProcess(testCtx, cmd, nil)
	require.NoError(t, err)
	startWaitForExit()
	defer func() {
		_ = executor.StopProcess(handle)
	}()

	if handle.IdentityTime.IsZero() {
		t.Skip("process identity time not available on this platform")
	}

	// A handle with a different identity time must not match the running process,
	// protecting against stopping an unrelated process after PID reuse.
	stale := NewProcessHandle(handle.Pid, handle.IdentityTime.Add(-time.Hour))
	err = executor.StopProcess(stale)
	require.Error(t, err)

	// The real process is still alive.
	proc, findErr := os.FindProcess(int(handle.Pid))
	require.NoError(t, findErr)
	require.NoError(t, proc.Signal(syscall.Signal(0)), "process should still be running")
}

func ensureStopped(t *testing.T, pid Pid_t, timeout time.Duration) {
	require.Eventually(t, func() bool {
		return isStopped(pid)
	}, timeout, 100*time.Millisecond, "process could not be stopped")
}

func isStopped(pid Pid_t) bool {
	// os.FindProcess never fails on Unix, so liveness has to be probed by
	// signalling. SIGWINCH is ignored by default, which makes it a safe
	// "are you there?" query.
	proc, findProcessErr := os.FindProcess(int(pid))
	if findProcessErr != nil {
		return true
	}
	signalSendErr := proc.Signal(syscall.SIGWINCH)
	return errors.Is(signalSendErr, os.ErrProcessDone)
}
