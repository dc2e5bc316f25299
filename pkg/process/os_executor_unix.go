//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// How long to wait for a process to exit after each signal.
const signalExitTimeout = 10 * time.Second

func (e *OSExecutor) stopSingleProcess(handle ProcessHandle, opts processStoppingOpts) (<-chan struct{}, error) {
	proc, err := FindProcess(handle.Pid, handle.IdentityTime)
	if err != nil {
		if opts&optNotFoundIsError != 0 {
			return nil, fmt.Errorf("could not find process %d: %w", handle.Pid, err)
		}
		return makeClosedChan(), nil
	}

	waitFunc := WaitFunc(func() error {
		_, waitErr := proc.Wait()
		return waitErr
	})

	ws, ownsStop := e.tryStartWaiting(handle.Pid, waitFunc, waitReasonStopping)

	endedCh := ws.waitEndedCh
	if opts&optWaitForStdio == 0 {
		endedCh = makeClosedChan()
	}

	if !ownsStop && opts&optIsResponsibleForStopping == 0 {
		// Another goroutine is stopping this process; the channel tells the caller when it is done.
		return endedCh, nil
	}

	if opts&optTrySignal != 0 {
		// Give the process a chance to exit gracefully. There is no universal
		// "please stop" signal, but SIGTERM is the one most programs handle.
		stopped, sigErr := e.signalAndAwaitExit(proc, syscall.SIGTERM, ws)
		if sigErr != nil {
			return nil, sigErr
		}
		if stopped {
			e.log.V(1).Info("process stopped by SIGTERM", "pid", handle.Pid)
			return endedCh, nil
		}
	}

	stopped, sigErr := e.signalAndAwaitExit(proc, syscall.SIGKILL, ws)
	if sigErr != nil {
		return nil, sigErr
	}
	if stopped {
		e.log.V(1).Info("process stopped by SIGKILL", "pid", handle.Pid)
	}

	return endedCh, nil
}

// signalAndAwaitExit sends sig to the process and waits for the wait state to
// record its exit. Returns false when the process is still running after
// signalExitTimeout.
func (e *OSExecutor) signalAndAwaitExit(proc *os.Process, sig syscall.Signal, ws *waitState) (bool, error) {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not send signal %s to process %d: %w", sig.String(), proc.Pid, err)
	}

	timer := time.NewTimer(signalExitTimeout)
	defer timer.Stop()

	select {

	case <-ws.waitEndedCh:
		if ws.waitErr == nil || IsEarlyProcessExitError(ws.waitErr) {
			// The process is gone, which is all the caller asked for.
			return true, nil
		}
		return false, fmt.Errorf("could not wait for process %d to exit: %w", proc.Pid, ws.waitErr)

	case <-timer.C:
		return false, nil
	}
}
