// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"go.opentelemetry.io/otel/trace"

	"github.com/microsoft/chromedap/internal/adapter"
	"github.com/microsoft/chromedap/internal/networking"
	"github.com/microsoft/chromedap/internal/telemetry"
)

// CommandHandler executes one protocol command and produces the response body,
// which may be nil for commands whose response carries no body.
type CommandHandler func(ctx context.Context, req dap.RequestMessage) (any, error)

// EngineConfig carries the dependencies of an Engine.
type EngineConfig struct {
	// Launcher owns the browser process being debugged. Required.
	Launcher *Launcher

	Logger logr.Logger
}

// Engine is the debugging backend behind the adapter proxy. It implements the
// session lifecycle commands (initialize, launch, attach, disconnect) against
// a Chrome-family browser and reports everything else as unknown. Debugging
// commands proper (breakpoints, stepping, evaluation) register through
// RegisterHandler as they are implemented.
type Engine struct {
	launcher *Launcher
	log      logr.Logger
	tracer   trace.Tracer

	handlers   map[string]CommandHandler
	raiseEvent func(ev dap.EventMessage)
}

func NewEngine(config EngineConfig) *Engine {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	e := &Engine{
		launcher: config.Launcher,
		log:      log.WithName("engine"),
		tracer:   telemetry.GetTelemetrySystem().TracerProvider.Tracer("chromedap-chrome"),
	}
	e.handlers = map[string]CommandHandler{
		"initialize":        e.onInitialize,
		"launch":            e.onLaunch,
		"attach":            e.onAttach,
		"configurationDone": e.onConfigurationDone,
		"disconnect":        e.onDisconnect,
	}
	e.launcher.SetTargetExitObserver(e.onTargetExit)
	return e
}

// RegisterHandler installs the handler for a protocol command, replacing any
// previous registration. Must not be called once dispatching has started.
func (e *Engine) RegisterHandler(command string, handler CommandHandler) {
	e.handlers[command] = handler
}

// Dispatch looks up the handler for the request's command and runs it on its
// own goroutine, delivering the handler result as the single outcome.
// Commands without a handler complete immediately with ErrUnknownCommand.
func (e *Engine) Dispatch(ctx context.Context, req dap.RequestMessage) <-chan adapter.Outcome {
	outcomes := make(chan adapter.Outcome, 1)

	command := req.GetRequest().Command
	handler, found := e.handlers[command]
	if !found {
		outcomes <- adapter.Outcome{Err: adapter.ErrUnknownCommand}
		return outcomes
	}

	go func() {
		body, err := handler(ctx, req)
		outcomes <- adapter.Outcome{Body: body, Err: err}
	}()

	return outcomes
}

// SetEventHandler installs the callback used to raise protocol events.
func (e *Engine) SetEventHandler(handler func(ev dap.EventMessage)) {
	e.raiseEvent = handler
}

func (e *Engine) onInitialize(ctx context.Context, req dap.RequestMessage) (any, error) {
	return &dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
	}, nil
}

func (e *Engine) onLaunch(ctx context.Context, req dap.RequestMessage) (any, error) {
	launchReq, ok := req.(*dap.LaunchRequest)
	if !ok {
		return nil, fmt.Errorf("launch request has unexpected type %T", req)
	}

	var config LaunchConfig
	if unmarshalErr := json.Unmarshal(launchReq.Arguments, &config); unmarshalErr != nil {
		return nil, fmt.Errorf("malformed launch arguments: %w", unmarshalErr)
	}

	target, launchErr := telemetry.CallWithTelemetry(e.tracer, "browser-launch", ctx,
		func(spanCtx context.Context) (networking.DebugTarget, error) {
			return e.launcher.Launch(spanCtx, config)
		})
	if launchErr != nil {
		return nil, launchErr
	}

	e.onAttached(ctx, config.Address, config.DebugPort(), target)
	return nil, nil
}

func (e *Engine) onAttach(ctx context.Context, req dap.RequestMessage) (any, error) {
	attachReq, ok := req.(*dap.AttachRequest)
	if !ok {
		return nil, fmt.Errorf("attach request has unexpected type %T", req)
	}

	var config AttachConfig
	if unmarshalErr := json.Unmarshal(attachReq.Arguments, &config); unmarshalErr != nil {
		return nil, fmt.Errorf("malformed attach arguments: %w", unmarshalErr)
	}

	target, attachErr := telemetry.CallWithTelemetry(e.tracer, "browser-attach", ctx,
		func(spanCtx context.Context) (networking.DebugTarget, error) {
			return e.launcher.Attach(spanCtx, config)
		})
	if attachErr != nil {
		return nil, attachErr
	}

	e.onAttached(ctx, config.Address, config.DebugPort(), target)
	return nil, nil
}

func (e *Engine) onConfigurationDone(ctx context.Context, req dap.RequestMessage) (any, error) {
	return nil, nil
}

func (e *Engine) onDisconnect(ctx context.Context, req dap.RequestMessage) (any, error) {
	return nil, telemetry.CallWithTelemetryNoResult(e.tracer, "browser-stop", ctx,
		func(context.Context) error {
			return e.launcher.Stop()
		})
}

// onAttached marks the moment a browser target became debuggable: the client
// may now start sending configuration (breakpoints and the like).
func (e *Engine) onAttached(ctx context.Context, address string, port int, target networking.DebugTarget) {
	if version, versionErr := networking.BrowserVersion(ctx, address, port); versionErr == nil {
		e.log.Info("Attached to browser target", "browser", version, "targetUrl", target.URL)
	} else {
		e.log.Info("Attached to browser target", "targetUrl", target.URL)
	}
	e.sendEvent(&dap.InitializedEvent{Event: newEvent("initialized")})
}

// onTargetExit reacts to the browser going away on its own. A debugging
// session cannot outlive its target, so the client is told the session is
// over; there is no restart.
func (e *Engine) onTargetExit(exitCode int32, exitErr error) {
	var output string
	if exitErr != nil {
		output = fmt.Sprintf("Browser process was lost: %v\n", exitErr)
	} else {
		output = fmt.Sprintf("Browser process exited unexpectedly with code %d\n", exitCode)
	}

	e.sendEvent(&dap.OutputEvent{
		Event: newEvent("output"),
		Body: dap.OutputEventBody{
			Category: "console",
			Output:   output,
		},
	})
	e.sendEvent(&dap.TerminatedEvent{Event: newEvent("terminated")})
}

func (e *Engine) sendEvent(ev dap.EventMessage) {
	if e.raiseEvent == nil {
		return
	}
	e.raiseEvent(ev)
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

var _ adapter.Engine = (*Engine)(nil)
