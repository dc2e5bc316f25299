// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/chromedap/pkg/testutil"
)

const sessionTestTimeout = 10 * time.Second

type readResult struct {
	msg dap.Message
	err error
}

// fakeClientTransport is a channel-backed Transport: tests push inbound
// messages (or read errors) and observe everything the session sends.
type fakeClientTransport struct {
	incoming chan readResult
	sent     chan dap.Message
	closed   atomic.Bool
}

func newFakeClientTransport() *fakeClientTransport {
	return &fakeClientTransport{
		incoming: make(chan readResult, 16),
		sent:     make(chan dap.Message, 16),
	}
}

func (t *fakeClientTransport) ReadMessage() (dap.Message, error) {
	r, ok := <-t.incoming
	if !ok {
		return nil, ErrTransportClosed
	}
	return r.msg, r.err
}

func (t *fakeClientTransport) WriteMessage(msg dap.Message) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	t.sent <- msg
	return nil
}

func (t *fakeClientTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		close(t.incoming)
	}
	return nil
}

func (t *fakeClientTransport) deliver(msg dap.Message) {
	t.incoming <- readResult{msg: msg}
}

func (t *fakeClientTransport) deliverReadError(err error) {
	t.incoming <- readResult{err: err}
}

// gatedEngine parks every dispatch until the test releases it by request seq,
// so tests control completion order precisely.
type gatedEngine struct {
	mu    sync.Mutex
	gates map[int]chan Outcome
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{gates: make(map[int]chan Outcome)}
}

func (e *gatedEngine) Dispatch(ctx context.Context, req dap.RequestMessage) <-chan Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	gate := make(chan Outcome, 1)
	e.gates[req.GetRequest().Seq] = gate
	return gate
}

func (e *gatedEngine) SetEventHandler(handler func(ev dap.EventMessage)) {}

func (e *gatedEngine) release(t *testing.T, seq int, outcome Outcome) {
	t.Helper()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		_, dispatched := e.gates[seq]
		return dispatched
	}, sessionTestTimeout, time.Millisecond, "request %d was never dispatched", seq)

	e.mu.Lock()
	gate := e.gates[seq]
	e.mu.Unlock()
	gate <- outcome
}

// panicOnceEngine panics synchronously on the first dispatch and behaves like
// its embedded engine afterwards.
type panicOnceEngine struct {
	mockEngine
	panicked atomic.Bool
}

func (e *panicOnceEngine) Dispatch(ctx context.Context, req dap.RequestMessage) <-chan Outcome {
	if e.panicked.CompareAndSwap(false, true) {
		panic("engine exploded during dispatch")
	}
	return e.mockEngine.Dispatch(ctx, req)
}

type sessionHarness struct {
	transport *fakeClientTransport
	session   *Session
	runDone   chan error
}

func startSession(t *testing.T, engine Engine, transformers ...Transformer) *sessionHarness {
	t.Helper()

	log := testutil.NewLogForTesting("session-test")
	transport := newFakeClientTransport()
	session := NewSession(SessionConfig{
		Transport: transport,
		Proxy:     NewProxy(engine, transformers, log),
		Logger:    log,
	})

	runDone := make(chan error, 1)
	go func() {
		runDone <- session.Run(context.Background())
	}()
	t.Cleanup(func() { _ = session.Close() })

	return &sessionHarness{
		transport: transport,
		session:   session,
		runDone:   runDone,
	}
}

func (h *sessionHarness) nextMessage(t *testing.T) dap.Message {
	t.Helper()

	select {
	case msg := <-h.transport.sent:
		return msg
	case <-time.After(sessionTestTimeout):
		t.Fatal("timed out waiting for a message to the client")
		return nil
	}
}

func (h *sessionHarness) nextResponse(t *testing.T) *successResponse {
	t.Helper()

	msg := h.nextMessage(t)
	resp, ok := msg.(*successResponse)
	require.True(t, ok, "expected a success response, got %T", msg)
	return resp
}

func (h *sessionHarness) nextErrorResponse(t *testing.T) *dap.ErrorResponse {
	t.Helper()

	msg := h.nextMessage(t)
	resp, ok := msg.(*dap.ErrorResponse)
	require.True(t, ok, "expected an error response, got %T", msg)
	return resp
}

func (h *sessionHarness) requireNothingSent(t *testing.T) {
	t.Helper()

	assert.Never(t, func() bool {
		return len(h.transport.sent) > 0
	}, 300*time.Millisecond, 20*time.Millisecond, "the session sent an unexpected message")
}

func evaluateRequest(seq int) *dap.EvaluateRequest {
	return &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{Expression: "x"},
	}
}

func TestSessionRespondsToRequests(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{
		dispatch: func(ctx context.Context, req dap.RequestMessage) Outcome {
			return Outcome{Body: &dap.ThreadsResponseBody{
				Threads: []dap.Thread{{Id: 1, Name: "main"}},
			}}
		},
	}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(1))

	resp := h.nextResponse(t)
	assert.True(t, resp.Success)
	assert.Equal(t, "threads", resp.Command)
	assert.Equal(t, 1, resp.RequestSeq)

	body, ok := resp.Body.(*dap.ThreadsResponseBody)
	require.True(t, ok, "body is %T", resp.Body)
	assert.Equal(t, "main", body.Threads[0].Name)
}

func TestSessionCorrelatesOutOfOrderCompletions(t *testing.T) {
	t.Parallel()

	engine := newGatedEngine()
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(1))
	h.transport.deliver(threadsRequest(2))

	// The later request completes first; its response must not be attributed
	// to the earlier one.
	engine.release(t, 2, Outcome{})
	assert.Equal(t, 2, h.nextResponse(t).RequestSeq)

	engine.release(t, 1, Outcome{})
	assert.Equal(t, 1, h.nextResponse(t).RequestSeq)
}

func TestSessionSendsExactlyOneResponsePerRequest(t *testing.T) {
	t.Parallel()

	engine := newGatedEngine()
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(7))
	engine.release(t, 7, Outcome{})
	assert.Equal(t, 7, h.nextResponse(t).RequestSeq)

	// A second completion for the same request must lose the latch and
	// produce nothing.
	h.session.completeRequest(context.Background(), 7, "threads", Outcome{}, false)
	h.requireNothingSent(t)
}

func TestSessionReportsUnknownCommands(t *testing.T) {
	t.Parallel()

	// The engine signals an unknown command by error text alone; the session
	// must still classify it correctly.
	engine := &mockEngine{
		dispatch: func(ctx context.Context, req dap.RequestMessage) Outcome {
			return Outcome{Err: errors.New("unknowncommand")}
		},
	}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(4))

	resp := h.nextErrorResponse(t)
	assert.False(t, resp.Success)
	assert.Equal(t, 4, resp.RequestSeq)
	assert.Equal(t, "[chromedap] Unrecognized request: threads", resp.Message)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1014, resp.Body.Error.Id)
	assert.True(t, resp.Body.Error.SendTelemetry)
}

func TestSessionHandlesCommandsUnknownToTheWireCodec(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	h := startSession(t, engine)

	// The codec consumed the framing but rejected the command; the request
	// still deserves its response and the session must keep reading.
	h.transport.deliverReadError(&dap.DecodeProtocolMessageFieldError{
		Seq:        9,
		SubType:    "request",
		FieldName:  "command",
		FieldValue: "customCommand",
	})

	resp := h.nextErrorResponse(t)
	assert.Equal(t, 9, resp.RequestSeq)
	assert.Equal(t, "customCommand", resp.Command)
	assert.Equal(t, "[chromedap] Unrecognized request: customCommand", resp.Message)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1014, resp.Body.Error.Id)

	h.transport.deliver(threadsRequest(10))
	assert.Equal(t, 10, h.nextResponse(t).RequestSeq)
}

func TestSessionEvaluateFailuresKeepTheirText(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{
		dispatch: func(ctx context.Context, req dap.RequestMessage) Outcome {
			return Outcome{Err: errors.New("ReferenceError: x is not defined")}
		},
	}
	h := startSession(t, engine)

	h.transport.deliver(evaluateRequest(3))

	resp := h.nextErrorResponse(t)
	assert.Equal(t, "ReferenceError: x is not defined", resp.Message)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1104, resp.Body.Error.Id)
	assert.False(t, resp.Body.Error.SendTelemetry)
}

func TestSessionFailuresCarryTheAdapterTag(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{
		dispatch: func(ctx context.Context, req dap.RequestMessage) Outcome {
			return Outcome{Err: errors.New("browser went away")}
		},
	}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(5))

	resp := h.nextErrorResponse(t)
	assert.Equal(t, "[chromedap] browser went away", resp.Message)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1104, resp.Body.Error.Id)
	assert.True(t, resp.Body.Error.SendTelemetry)
}

func TestSessionPassesProtocolErrorsThrough(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{
		dispatch: func(ctx context.Context, req dap.RequestMessage) Outcome {
			return Outcome{Err: &ProtocolError{Message: dap.ErrorMessage{
				Id:       2007,
				Format:   "Cannot attach to this target",
				ShowUser: true,
			}}}
		},
	}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(6))

	resp := h.nextErrorResponse(t)
	assert.Equal(t, "Cannot attach to this target", resp.Message)
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 2007, resp.Body.Error.Id)
	assert.True(t, resp.Body.Error.ShowUser)
}

func TestSessionSurvivesDispatchPanics(t *testing.T) {
	t.Parallel()

	engine := &panicOnceEngine{}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(1))

	resp := h.nextErrorResponse(t)
	assert.Equal(t, 1, resp.RequestSeq)
	assert.Contains(t, resp.Message, "exception while processing request")
	require.NotNil(t, resp.Body.Error)
	assert.Equal(t, 1104, resp.Body.Error.Id)

	// One bad request must not take the session down.
	h.transport.deliver(threadsRequest(2))
	assert.Equal(t, 2, h.nextResponse(t).RequestSeq)
}

func TestSessionInterleavesEventsWithResponses(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	engine.dispatch = func(ctx context.Context, req dap.RequestMessage) Outcome {
		for i := 0; i < 3; i++ {
			engine.RaiseEvent(&dap.OutputEvent{
				Event: dap.Event{
					ProtocolMessage: dap.ProtocolMessage{Type: "event"},
					Event:           "output",
				},
				Body: dap.OutputEventBody{Category: "console", Output: "tick\n"},
			})
		}
		return Outcome{}
	}
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(1))

	// Every event arrives, in order, before the response that follows them.
	var lastSeq int
	for i := 0; i < 3; i++ {
		msg := h.nextMessage(t)
		ev, ok := msg.(*dap.OutputEvent)
		require.True(t, ok, "expected an output event, got %T", msg)
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
	}

	resp := h.nextResponse(t)
	assert.Equal(t, 1, resp.RequestSeq)
	assert.Greater(t, resp.Seq, lastSeq)
}

func TestSessionDiscardsLateResponsesAfterClose(t *testing.T) {
	t.Parallel()

	engine := newGatedEngine()
	h := startSession(t, engine)

	h.transport.deliver(threadsRequest(1))

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		_, dispatched := engine.gates[1]
		return dispatched
	}, sessionTestTimeout, time.Millisecond)

	require.NoError(t, h.session.Close())

	// The engine finishes after the session is gone; the late response is
	// dropped without disturbing anything.
	engine.release(t, 1, Outcome{})
	h.requireNothingSent(t)
}

func TestSessionIgnoresNonRequestMessages(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	h := startSession(t, engine)

	h.transport.deliver(&dap.InitializedEvent{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "event"},
			Event:           "initialized",
		},
	})
	h.transport.deliver(threadsRequest(2))

	assert.Equal(t, 2, h.nextResponse(t).RequestSeq)
}

func TestSessionEndsCleanlyWhenClientDisconnects(t *testing.T) {
	t.Parallel()

	h := startSession(t, &mockEngine{})

	require.NoError(t, h.transport.Close())

	select {
	case runErr := <-h.runDone:
		assert.NoError(t, runErr)
	case <-time.After(sessionTestTimeout):
		t.Fatal("session did not shut down after the client disconnected")
	}
}

func TestSessionSurfacesReadErrors(t *testing.T) {
	t.Parallel()

	h := startSession(t, &mockEngine{})

	h.transport.deliverReadError(errors.New("wire corrupted"))

	select {
	case runErr := <-h.runDone:
		assert.ErrorContains(t, runErr, "wire corrupted")
	case <-time.After(sessionTestTimeout):
		t.Fatal("session did not stop on a transport failure")
	}
}
