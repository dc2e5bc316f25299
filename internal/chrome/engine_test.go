// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/chromedap/internal/adapter"
	"github.com/microsoft/chromedap/pkg/testutil"
)

// eventRecorder captures the events an engine raises.
type eventRecorder struct {
	mu     sync.Mutex
	events []dap.EventMessage
}

func (r *eventRecorder) record(ev dap.EventMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) recorded() []dap.EventMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dap.EventMessage{}, r.events...)
}

func newTestEngine(executor *fakeExecutor) (*Engine, *eventRecorder) {
	log := testutil.NewLogForTesting("chrome-test")
	launcher := NewLauncher(LauncherConfig{
		Executor: executor,
		FindExecutable: func() (string, error) {
			return "", ErrExecutableNotFound
		},
		AttachTimeout: defaultChromeTestTimeout,
		Logger:        log,
	})
	engine := NewEngine(EngineConfig{Launcher: launcher, Logger: log})

	recorder := &eventRecorder{}
	engine.SetEventHandler(recorder.record)
	return engine, recorder
}

func dispatchAndWait(ctx context.Context, t *testing.T, engine *Engine, req dap.RequestMessage) adapter.Outcome {
	t.Helper()

	select {
	case outcome := <-engine.Dispatch(ctx, req):
		return outcome
	case <-ctx.Done():
		t.Fatal("timed out waiting for the engine outcome")
		return adapter.Outcome{}
	}
}

func newRequest(seq int, command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
}

func launchRequest(t *testing.T, seq int, config LaunchConfig) *dap.LaunchRequest {
	t.Helper()

	arguments, err := json.Marshal(config)
	require.NoError(t, err)
	return &dap.LaunchRequest{
		Request:   newRequest(seq, "launch"),
		Arguments: arguments,
	}
}

func TestInitializeReportsCapabilities(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	engine, _ := newTestEngine(newFakeExecutor())

	outcome := dispatchAndWait(ctx, t, engine, &dap.InitializeRequest{
		Request: newRequest(1, "initialize"),
	})
	require.NoError(t, outcome.Err)

	capabilities, ok := outcome.Body.(*dap.Capabilities)
	require.True(t, ok, "initialize body is %T", outcome.Body)
	assert.True(t, capabilities.SupportsConfigurationDoneRequest)
}

func TestDispatchReportsUnknownCommands(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	engine, _ := newTestEngine(newFakeExecutor())

	outcome := dispatchAndWait(ctx, t, engine, &dap.ThreadsRequest{
		Request: newRequest(1, "threads"),
	})
	require.ErrorIs(t, outcome.Err, adapter.ErrUnknownCommand)
}

func TestLaunchRequestStartsBrowserAndRaisesInitialized(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	address, port := fakeBrowserEndpoint(t, "http://localhost/index.html")
	executor := newFakeExecutor()
	engine, recorder := newTestEngine(executor)

	outcome := dispatchAndWait(ctx, t, engine, launchRequest(t, 2, LaunchConfig{
		RuntimeExecutable: "/usr/lib/fake-browser/browser",
		Address:           address,
		Port:              port,
		URL:               "http://localhost/index.html",
	}))
	require.NoError(t, outcome.Err)
	assert.Nil(t, outcome.Body)

	require.Len(t, executor.startedCommands(), 1)

	events := recorder.recorded()
	require.Len(t, events, 1)
	assert.IsType(t, &dap.InitializedEvent{}, events[0])
}

func TestLaunchRequestRejectsMalformedArguments(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	executor := newFakeExecutor()
	engine, recorder := newTestEngine(executor)

	outcome := dispatchAndWait(ctx, t, engine, &dap.LaunchRequest{
		Request:   newRequest(2, "launch"),
		Arguments: json.RawMessage(`{"port": "nine thousand"}`),
	})
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "malformed launch arguments")
	assert.Empty(t, executor.startedCommands())
	assert.Empty(t, recorder.recorded())
}

func TestAttachRequestFindsTargetAndRaisesInitialized(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	address, port := fakeBrowserEndpoint(t, "http://localhost/app.html")
	executor := newFakeExecutor()
	engine, recorder := newTestEngine(executor)

	arguments, err := json.Marshal(AttachConfig{Address: address, Port: port})
	require.NoError(t, err)

	outcome := dispatchAndWait(ctx, t, engine, &dap.AttachRequest{
		Request:   newRequest(2, "attach"),
		Arguments: arguments,
	})
	require.NoError(t, outcome.Err)
	assert.Empty(t, executor.startedCommands())

	events := recorder.recorded()
	require.Len(t, events, 1)
	assert.IsType(t, &dap.InitializedEvent{}, events[0])
}

func TestDisconnectTearsDownBrowserExactlyOnce(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	address, port := fakeBrowserEndpoint(t, "")
	executor := newFakeExecutor()
	engine, _ := newTestEngine(executor)

	outcome := dispatchAndWait(ctx, t, engine, launchRequest(t, 2, LaunchConfig{
		RuntimeExecutable: "/usr/lib/fake-browser/browser",
		Address:           address,
		Port:              port,
	}))
	require.NoError(t, outcome.Err)

	for seq := 3; seq <= 5; seq++ {
		outcome = dispatchAndWait(ctx, t, engine, &dap.DisconnectRequest{
			Request: newRequest(seq, "disconnect"),
		})
		require.NoError(t, outcome.Err)
	}

	assert.Len(t, executor.stoppedHandles(), 1)
}

func TestConfigurationDoneSucceeds(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	engine, _ := newTestEngine(newFakeExecutor())

	outcome := dispatchAndWait(ctx, t, engine, &dap.ConfigurationDoneRequest{
		Request: newRequest(2, "configurationDone"),
	})
	require.NoError(t, outcome.Err)
	assert.Nil(t, outcome.Body)
}

func TestBrowserExitRaisesTerminatedEvent(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	address, port := fakeBrowserEndpoint(t, "")
	executor := newFakeExecutor()
	engine, recorder := newTestEngine(executor)

	outcome := dispatchAndWait(ctx, t, engine, launchRequest(t, 2, LaunchConfig{
		RuntimeExecutable: "/usr/lib/fake-browser/browser",
		Address:           address,
		Port:              port,
	}))
	require.NoError(t, outcome.Err)

	executor.exitProcess(t, executor.lastPid(), 9, nil)

	events := recorder.recorded()
	require.Len(t, events, 3)
	assert.IsType(t, &dap.InitializedEvent{}, events[0])

	output, ok := events[1].(*dap.OutputEvent)
	require.True(t, ok, "expected an output event, got %T", events[1])
	assert.Equal(t, "console", output.Body.Category)
	assert.Contains(t, output.Body.Output, fmt.Sprintf("code %d", 9))

	assert.IsType(t, &dap.TerminatedEvent{}, events[2])
}

func TestRegisteredHandlerReceivesDispatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultChromeTestTimeout)
	defer cancel()

	engine, _ := newTestEngine(newFakeExecutor())
	engine.RegisterHandler("threads", func(ctx context.Context, req dap.RequestMessage) (any, error) {
		return &dap.ThreadsResponseBody{
			Threads: []dap.Thread{{Id: 1, Name: "main"}},
		}, nil
	})

	outcome := dispatchAndWait(ctx, t, engine, &dap.ThreadsRequest{
		Request: newRequest(1, "threads"),
	})
	require.NoError(t, outcome.Err)

	body, ok := outcome.Body.(*dap.ThreadsResponseBody)
	require.True(t, ok, "threads body is %T", outcome.Body)
	require.Len(t, body.Threads, 1)
	assert.Equal(t, "main", body.Threads[0].Name)
}
