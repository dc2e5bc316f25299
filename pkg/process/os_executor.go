package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/chromedap/pkg/maps"
	"github.com/microsoft/chromedap/pkg/resiliency"
	"github.com/microsoft/chromedap/pkg/slices"
)

// Waitable abstracts exec.Cmd.Wait and os.Process.Wait so both can feed
// the same wait bookkeeping.
type Waitable interface {
	Wait() error
}

type WaitFunc func() error

func (f WaitFunc) Wait() error {
	return f()
}

// waitReason says why somebody is interested in a process exit.
// Reasons accumulate; the wait itself starts with the first reason
// other than waitReasonNone.
type waitReason uint32

const (
	waitReasonNone       waitReason = 0x0
	waitReasonMonitoring waitReason = 0x1
	waitReasonStopping   waitReason = 0x2
)

// waitState tracks the (single) wait for the exit of one process. Wait can
// be called at most once per process, but the outcome may have several
// interested readers: the exit notification path plus any stop requests.
// The outcome is published by storing waitErr and then closing waitEndedCh;
// waitErr must not be read before waitEndedCh is closed.
type waitState struct {
	waitable    Waitable
	reason      waitReason
	waitEndedCh chan struct{}
	waitErr     error
	waitEnded   time.Time // Zero while the wait is still running.
}

// OSExecutor runs processes directly on the host OS.
type OSExecutor struct {
	mu           sync.Mutex
	procsWaiting map[Pid_t]*waitState
	log          logr.Logger
}

func NewOSExecutor(log logr.Logger) Executor {
	return &OSExecutor{
		procsWaiting: make(map[Pid_t]*waitState),
		log:          log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler ProcessExitHandler) (ProcessHandle, func(), error) {
	if err := cmd.Start(); err != nil {
		return ProcessHandle{Pid: UnknownPID}, nil, err
	}

	handle := ProcessHandleFromCmd(cmd)

	// Register the wait without starting it. This ties the wait for the new
	// PID to the command that created it; cmd.Wait is the only wait that can
	// reap the process and drain its stdio.
	ws, _ := e.tryStartWaiting(handle.Pid, WaitFunc(cmd.Wait), waitReasonNone)

	go e.watchProcess(ctx, cmd, handle, ws, handler)

	enableExitNotification := func() {
		_, _ = e.tryStartWaiting(handle.Pid, WaitFunc(cmd.Wait), waitReasonMonitoring)
	}

	return handle, enableExitNotification, nil
}

// watchProcess reports the process exit to the handler, stopping the process
// first if the context expires before it ends on its own.
func (e *OSExecutor) watchProcess(ctx context.Context, cmd *exec.Cmd, handle ProcessHandle, ws *waitState, handler ProcessExitHandler) {
	select {

	case <-ws.waitEndedCh:
		if handler != nil {
			exitCode, execErr := processExecResult(ws.waitErr, cmd)
			handler.OnProcessExited(handle.Pid, exitCode, errors.Join(ctx.Err(), execErr))
		}

	case <-ctx.Done():
		_, ownsStop := e.tryStartWaiting(handle.Pid, WaitFunc(cmd.Wait), waitReasonStopping)

		var stopErr error
		if ownsStop {
			stopErr = e.stopProcessInternal(handle, optIsResponsibleForStopping)
			if stopErr != nil {
				if handler != nil {
					handler.OnProcessExited(handle.Pid, UnknownExitCode, errors.Join(stopErr, ctx.Err()))
				}
				// The process did not stop and we reported that; there is no exit to wait for.
				return
			}
		}

		<-ws.waitEndedCh

		if handler != nil {
			exitCode, execErr := processExecResult(ws.waitErr, cmd)
			handler.OnProcessExited(handle.Pid, exitCode, errors.Join(stopErr, execErr, ctx.Err()))
		}
	}
}

// tryStartWaiting merges a new interest in the exit of process pid into its
// wait state, creating the state if there is none. The wait function runs on
// its own goroutine once the combined reason is anything other than
// waitReasonNone, and is never started twice.
//
// The second result is true when the caller is the first to declare
// waitReasonStopping, making it the one that must actually stop the process.
func (e *OSExecutor) tryStartWaiting(pid Pid_t, waitable Waitable, reason waitReason) (*waitState, bool) {
	e.lockStates()
	defer e.unlockStates()

	ws, found := e.procsWaiting[pid]
	if !found {
		ws = &waitState{
			waitable:    waitable,
			reason:      reason,
			waitEndedCh: make(chan struct{}),
		}
		e.procsWaiting[pid] = ws
		if reason != waitReasonNone {
			go e.runWait(ws)
		}
		return ws, reason&waitReasonStopping != 0
	}

	if !ws.waitEnded.IsZero() {
		// The wait finished and the result is recorded; nothing left to update.
		return ws, false
	}

	ownsStop := reason&waitReasonStopping != 0 && ws.reason&waitReasonStopping == 0
	if ws.reason == waitReasonNone && reason != waitReasonNone {
		go e.runWait(ws)
	}
	ws.reason |= reason

	return ws, ownsStop
}

// runWait blocks until the waitable finishes, then publishes the outcome.
func (e *OSExecutor) runWait(ws *waitState) {
	err := ws.waitable.Wait()

	e.lockStates()
	defer e.unlockStates()

	ws.waitErr = err
	ws.waitEnded = time.Now()
	close(ws.waitEndedCh)
}

// processExecResult turns the outcome of a wait into an exit code.
// An exec.ExitError still carries a valid exit code; any other wait error
// means the exit code could not be determined.
func processExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	}
	return UnknownExitCode, waitErr
}

// Completed wait states linger briefly so that a late stop request for the
// same PID finds the recorded result instead of waiting on a PID the OS may
// have reused.
const completedWaitRetention = 1 * time.Minute

func (e *OSExecutor) lockStates() {
	e.mu.Lock()
	e.procsWaiting = maps.Select(e.procsWaiting, func(_ Pid_t, ws *waitState) bool {
		return ws.waitEnded.IsZero() || time.Since(ws.waitEnded) < completedWaitRetention
	})
}

func (e *OSExecutor) unlockStates() {
	e.mu.Unlock()
}

func (e *OSExecutor) StopProcess(handle ProcessHandle) error {
	return e.stopProcessInternal(handle, optNone)
}

func (e *OSExecutor) stopProcessInternal(handle ProcessHandle, opts processStoppingOpts) error {
	tree, err := GetProcessTree(handle)
	if err != nil {
		return fmt.Errorf("could not get process tree for process %d: %w", handle.Pid, err)
	}

	e.log.V(1).Info("stopping process tree", "root", handle.Pid, "tree", getIDs(tree))

	// The root goes first; if it cannot be stopped, leave the rest of the tree alone.
	rootEndedCh, stopErr := e.stopSingleProcess(handle, opts|optNotFoundIsError|optTrySignal|optWaitForStdio)
	if stopErr != nil {
		e.log.Error(stopErr, "could not stop root process", "root", handle.Pid)
		return stopErr
	}

	children := tree[1:]
	if len(children) > 0 {
		// Stopping a child occasionally fails with a transient "Access Denied",
		// so each one gets a short retry loop.
		const childStopTimeout = 2 * time.Second
		childErrs := slices.MapConcurrent[ProcessHandle, error](children, func(child ProcessHandle) error {
			return resiliency.RetryExponentialWithTimeout(context.Background(), childStopTimeout, func() error {
				_, childErr := e.stopSingleProcess(child, opts)
				return childErr
			})
		}, slices.MaxConcurrency)
		childErrs = slices.Select(childErrs, func(err error) bool { return err != nil })
		if len(childErrs) > 0 {
			return fmt.Errorf("some children processes could not be stopped: %w", errors.Join(childErrs...))
		}
	}

	<-rootEndedCh

	return nil
}

type processStoppingOpts uint16

const (
	optNone            processStoppingOpts = 0
	optNotFoundIsError processStoppingOpts = 0x1
	optTrySignal       processStoppingOpts = 0x2

	// Report the process as stopped only once its wait finished (for commands
	// that includes draining stdio), not merely once the kill went through.
	optWaitForStdio processStoppingOpts = 0x4

	// The caller already owns stopping the process; disregard the ownership
	// answer from tryStartWaiting.
	optIsResponsibleForStopping processStoppingOpts = 0x8
)

func makeClosedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

var _ Executor = (*OSExecutor)(nil)
