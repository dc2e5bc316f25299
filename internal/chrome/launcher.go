// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/chromedap/internal/networking"
	"github.com/microsoft/chromedap/pkg/process"
)

// defaultAttachTimeout bounds the wait for a freshly launched browser to open
// its debugging endpoint. A healthy browser is up well within a second; when
// this expires something is wrong with the launch configuration.
const defaultAttachTimeout = 10 * time.Second

// TargetExitObserver is notified when the browser exits on its own, that is,
// not as part of a deliberate stop. If the exit code could not be captured,
// exitErr says why and exitCode is not valid.
type TargetExitObserver func(exitCode int32, exitErr error)

// LauncherConfig carries the dependencies of a Launcher. Zero values select
// production defaults.
type LauncherConfig struct {
	// Executor starts and stops the browser process.
	Executor process.Executor

	// FindExecutable locates a browser when the launch configuration does not
	// name one. Defaults to FindBrowser.
	FindExecutable func() (string, error)

	// AttachTimeout bounds the wait for the browser debugging endpoint.
	AttachTimeout time.Duration

	Logger logr.Logger
}

// Launcher starts the browser under debugging and supervises it for the rest
// of the session. It owns at most one target process: Launch fills the handle,
// Stop signals and clears it, and the exit watcher clears it when the browser
// goes away on its own.
type Launcher struct {
	executor       process.Executor
	findExecutable func() (string, error)
	attachTimeout  time.Duration
	log            logr.Logger

	onTargetExit TargetExitObserver

	mu     sync.Mutex
	target *process.ProcessHandle
}

func NewLauncher(config LauncherConfig) *Launcher {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("launcher")

	executor := config.Executor
	if executor == nil {
		executor = process.NewOSExecutor(log)
	}

	findExecutable := config.FindExecutable
	if findExecutable == nil {
		findExecutable = FindBrowser
	}

	attachTimeout := config.AttachTimeout
	if attachTimeout <= 0 {
		attachTimeout = defaultAttachTimeout
	}

	return &Launcher{
		executor:       executor,
		findExecutable: findExecutable,
		attachTimeout:  attachTimeout,
		log:            log,
	}
}

// SetTargetExitObserver installs the observer for unexpected browser exits.
// It must be called before Launch.
func (l *Launcher) SetTargetExitObserver(observer TargetExitObserver) {
	l.onTargetExit = observer
}

// Launch starts the browser with its remote debugging endpoint enabled and
// resolves once the endpoint accepts connections, returning the page target
// to debug.
//
// When the endpoint never becomes ready the launch fails, but the spawned
// process stays under the launcher's supervision so that the disconnect
// following a failed launch still tears it down.
func (l *Launcher) Launch(ctx context.Context, config LaunchConfig) (networking.DebugTarget, error) {
	executable := config.RuntimeExecutable
	if executable == "" {
		var findErr error
		executable, findErr = l.findExecutable()
		if findErr != nil {
			// Nothing was spawned; this is a configuration problem the client
			// can fix by setting runtimeExecutable.
			return networking.DebugTarget{}, findErr
		}
	}

	args := config.BrowserArgs()
	l.log.Info("Launching browser", "executable", executable, "args", args)

	// A browser that already owns the debugging port will adopt the new window
	// and the process we spawn exits right away, so the endpoint found by the
	// poll below would belong to the old instance.
	if portErr := networking.CheckPortAvailable(config.Address, config.DebugPort()); portErr != nil {
		l.log.Info("Remote debugging port is already in use, the attach may find an existing browser instance",
			"port", config.DebugPort())
	}

	cmd := exec.Command(executable, args...)

	// The browser must not die with the adapter, and it takes no input from
	// us: everything after launch happens over the debugging endpoint.
	// Its lifetime is bounded by Stop or by the user closing it, so the
	// executor gets a background context rather than the request context.
	process.DecoupleFromParent(cmd)

	handle, startWaitForExit, startErr := l.executor.StartProcess(
		context.Background(), cmd, process.ProcessExitHandlerFunc(l.handleTargetExit))
	if startErr != nil {
		return networking.DebugTarget{}, fmt.Errorf("failed to start browser %s: %w", executable, startErr)
	}

	l.mu.Lock()
	l.target = &handle
	l.mu.Unlock()

	startWaitForExit()
	l.log.Info("Browser process started", "pid", handle.Pid)

	return l.awaitDebugTarget(ctx, config.Address, config.DebugPort(), config.LaunchURL())
}

// Attach connects to a browser that is already listening for debugger
// connections. No process is spawned and none is supervised: disconnecting
// from an attached browser leaves it running.
func (l *Launcher) Attach(ctx context.Context, config AttachConfig) (networking.DebugTarget, error) {
	return l.awaitDebugTarget(ctx, config.Address, config.DebugPort(), config.URL)
}

func (l *Launcher) awaitDebugTarget(ctx context.Context, address string, port int, targetURL string) (networking.DebugTarget, error) {
	attachCtx, cancelAttach := context.WithTimeout(ctx, l.attachTimeout)
	defer cancelAttach()

	target, waitErr := networking.WaitForDebugTarget(attachCtx, address, port, targetURL, l.log)
	if waitErr != nil {
		return networking.DebugTarget{}, fmt.Errorf(
			"browser debugging endpoint at %s did not become ready within %v: %w",
			networking.AddressAndPort(address, port), l.attachTimeout, waitErr)
	}

	l.log.Info("Found browser debug target",
		"targetUrl", target.URL,
		"webSocketDebuggerUrl", target.WebSocketDebuggerURL)
	return target, nil
}

// Stop tears down the launched browser, if any. It is safe to call without a
// preceding launch and safe to call repeatedly: only the first call after a
// launch finds a process to signal.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	handle := l.target
	l.target = nil
	l.mu.Unlock()

	if handle == nil {
		l.log.V(1).Info("No browser process to stop")
		return nil
	}

	l.log.Info("Stopping browser process", "pid", handle.Pid)

	stopErr := l.executor.StopProcess(*handle)
	if stopErr != nil && !errors.Is(stopErr, process.ErrorProcessNotFound) {
		return fmt.Errorf("failed to stop browser process %d: %w", handle.Pid, stopErr)
	}
	return nil
}

// handleTargetExit runs when the executor notices the browser process is gone.
// Exits caused by Stop are expected and swallowed; anything else means the
// debugging target disappeared under the session, which the observer turns
// into session termination.
func (l *Launcher) handleTargetExit(pid process.Pid_t, exitCode int32, exitErr error) {
	l.mu.Lock()
	owned := l.target != nil && l.target.Pid == pid
	if owned {
		l.target = nil
	}
	l.mu.Unlock()

	if !owned {
		// Stop clears the handle before signalling, so the exit notification
		// that follows a deliberate stop lands here.
		l.log.V(1).Info("Browser process exited after stop", "pid", pid, "exitCode", exitCode)
		return
	}

	if exitErr != nil {
		l.log.Error(exitErr, "Lost track of the browser process", "pid", pid)
	} else {
		l.log.Info("Browser process exited unexpectedly", "pid", pid, "exitCode", exitCode)
	}

	if l.onTargetExit != nil {
		l.onTargetExit(exitCode, exitErr)
	}
}
