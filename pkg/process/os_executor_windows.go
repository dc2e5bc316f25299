//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
)

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

	// Windows has no signal for asking a process to exit, so stopping means killing.
	if ownsStop || opts&optIsResponsibleForStopping != 0 {
		e.log.V(1).Info("killing process", "pid", handle.Pid)
		if killErr := proc.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return nil, killErr
		}
	}

	return endedCh, nil
}
