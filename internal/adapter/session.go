/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/microsoft/chromedap/internal/telemetry"
)

// Error ids surfaced to the client in error responses. Clients and their
// telemetry pipelines key off these values, so they must remain stable.
const (
	// unrecognizedRequestErrorId reports a command the adapter does not implement.
	unrecognizedRequestErrorId = 1014

	// dispatchExceptionErrorId reports a request that failed while being processed.
	dispatchExceptionErrorId = 1104
)

// adapterTag prefixes failure text the adapter originates, so the user can
// tell adapter errors apart from output produced by the debugged page.
const adapterTag = "[chromedap]"

// responsePolicy controls how a failed request is presented for a command.
type responsePolicy struct {
	// verbatim passes the failure text through without the adapter tag.
	verbatim bool

	// sendTelemetry marks the error response for telemetry collection by the client.
	sendTelemetry bool
}

var defaultResponsePolicy = responsePolicy{sendTelemetry: true}

// responsePolicies lists commands whose failures are presented differently
// from the default. Evaluation failures surface in the console and the watch
// panes as ordinary output, so they keep their raw text and are not reported
// to telemetry.
var responsePolicies = map[string]responsePolicy{
	"evaluate": {verbatim: true},
}

func policyFor(command string) responsePolicy {
	if policy, ok := responsePolicies[command]; ok {
		return policy
	}
	return defaultResponsePolicy
}

// ProtocolError is an error carrying a ready-made protocol error message.
// An engine returns it when it wants full control over the error response:
// its own error id, message variables, or user visibility.
type ProtocolError struct {
	Message dap.ErrorMessage
}

func (e *ProtocolError) Error() string {
	return e.Message.Format
}

// successResponse is a generic success response carrying whatever body the
// engine produced. Typed response structs are not needed on the way out;
// the client decodes by command and shape.
type successResponse struct {
	dap.Response
	Body any `json:"body,omitempty"`
}

// SessionConfig carries the dependencies for NewSession.
type SessionConfig struct {
	// Transport carries protocol messages to and from the client. Required.
	Transport Transport

	// Proxy dispatches requests to the engine. Required.
	Proxy *Proxy

	// Logger receives traffic and lifecycle logging.
	// If unset, logging is disabled.
	Logger logr.Logger
}

// Session drives one debugging session over a Transport. It reads client
// requests, dispatches each through the Proxy without waiting for earlier
// requests to finish, and guarantees exactly one response per request, in
// whatever order dispatches complete. It also delivers engine events to the
// client, interleaved with responses.
type Session struct {
	transport Transport
	proxy     *Proxy
	log       logr.Logger
	tracer    trace.Tracer

	seq     *sequenceCounter
	pending *pendingRequests

	closed atomic.Bool
}

// NewSession creates a Session and attaches it to the proxy's event stream.
func NewSession(config SessionConfig) *Session {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	s := &Session{
		transport: config.Transport,
		proxy:     config.Proxy,
		log:       log,
		tracer:    telemetry.GetTelemetrySystem().TracerProvider.Tracer("chromedap-session"),
		seq:       newSequenceCounter(),
		pending:   newPendingRequests(),
	}
	s.proxy.SetEventSink(s.SendEvent)
	return s
}

// Run reads and dispatches client messages until the transport closes, the
// client disconnects, or ctx is cancelled. It returns nil on a clean shutdown
// and the underlying error otherwise. The session is closed by the time Run
// returns; in-flight dispatches keep running and their late responses are
// discarded.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	activeSessionsCounter.Add(ctx, 1)
	defer activeSessionsCounter.Add(context.Background(), -1)

	// The read loop blocks in ReadMessage, so context cancellation has to
	// reach it through the transport.
	stopWatching := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stopWatching()

	for {
		msg, readErr := s.transport.ReadMessage()
		if readErr != nil {
			var decodeErr *dap.DecodeProtocolMessageFieldError
			if errors.As(readErr, &decodeErr) && decodeErr.SubType == "request" && decodeErr.FieldName == "command" {
				// The codec rejected a request whose command it does not know.
				// The message framing was still consumed, so answer the request
				// and keep reading.
				s.log.Info("From client", "command", decodeErr.FieldValue, "seq", decodeErr.Seq)
				s.pending.Add(decodeErr.Seq, decodeErr.FieldValue)
				s.completeRequest(ctx, decodeErr.Seq, decodeErr.FieldValue, Outcome{Err: ErrUnknownCommand}, false)
				continue
			}

			if s.closed.Load() ||
				errors.Is(readErr, ErrTransportClosed) ||
				errors.Is(readErr, io.EOF) ||
				errors.Is(readErr, io.ErrUnexpectedEOF) ||
				errors.Is(readErr, net.ErrClosed) {
				s.log.V(1).Info("Client connection ended", "reason", readErr)
				return nil
			}

			return filterContextError(readErr, ctx, s.log)
		}

		switch m := msg.(type) {
		case dap.RequestMessage:
			s.dispatchRequest(ctx, m)
		default:
			s.log.Info("Ignoring unexpected message from client", "type", fmt.Sprintf("%T", msg), "seq", msg.GetSeq())
		}
	}
}

// Close closes the session and its transport. It is safe to call multiple
// times and from any goroutine.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if outstanding := s.pending.Outstanding(); len(outstanding) > 0 {
		s.log.Info("Closing session with requests still in flight", "count", len(outstanding), "seqs", outstanding)
	}

	return s.transport.Close()
}

// SendEvent delivers an event to the client, assigning its sequence number.
// After the session is closed this is a no-op.
func (s *Session) SendEvent(ev dap.EventMessage) {
	e := ev.GetEvent()
	e.Seq = s.seq.Next()
	e.Type = "event"

	eventsEmittedCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", e.Event)))

	s.logTraffic("To client", ev)
	s.send(ev)
}

// dispatchRequest hands one request to the proxy and arranges for its single
// response. The read loop is never blocked on the engine: the response is
// produced by a completion goroutine when the outcome arrives.
func (s *Session) dispatchRequest(ctx context.Context, msg dap.RequestMessage) {
	req := msg.GetRequest()
	seq := req.Seq
	command := req.Command

	s.logTraffic("From client", msg)
	requestsDispatchedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))

	s.pending.Add(seq, command)

	spanCtx, span := s.tracer.Start(ctx, command)
	telemetry.MarkSuppressIfSuccessful(spanCtx)
	telemetry.SetAttribute(spanCtx, "seq", seq)

	outcomes, dispatchErr := s.proxy.Dispatch(spanCtx, msg)
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, dispatchErr.Error())
		span.End()

		wrapped := fmt.Errorf("exception while processing request: %w", dispatchErr)
		s.completeRequest(ctx, seq, command, Outcome{Err: wrapped}, true)
		return
	}

	go func() {
		outcome := <-outcomes
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Err.Error())
		}
		span.End()

		s.completeRequest(ctx, seq, command, outcome, false)
	}()
}

// completeRequest turns an outcome into the one and only response for the
// request identified by seq. The pending map is the latch: the caller that
// removes the entry owns the send.
func (s *Session) completeRequest(ctx context.Context, seq int, command string, outcome Outcome, dispatchException bool) {
	if !s.pending.Remove(seq) {
		s.log.V(1).Info("Dropping duplicate response", "command", command, "seq", seq)
		return
	}

	var protocolErr *ProtocolError

	switch {
	case dispatchException:
		s.log.Error(outcome.Err, "Request dispatch failed", "command", command, "seq", seq)
		s.sendErrorResponse(ctx, seq, command, dispatchExceptionErrorId, outcome.Err.Error(), defaultResponsePolicy)

	case outcome.Err == nil:
		s.sendResponse(seq, command, outcome.Body)

	case errors.As(outcome.Err, &protocolErr):
		s.log.Error(outcome.Err, "Request failed", "command", command, "seq", seq)
		s.sendProtocolErrorResponse(ctx, seq, command, protocolErr.Message)

	case IsUnknownCommand(outcome.Err):
		s.log.Info("Unrecognized request", "command", command, "seq", seq)
		s.sendErrorResponse(ctx, seq, command, unrecognizedRequestErrorId,
			fmt.Sprintf("Unrecognized request: %s", command), defaultResponsePolicy)

	default:
		s.log.Error(outcome.Err, "Request failed", "command", command, "seq", seq)
		s.sendErrorResponse(ctx, seq, command, dispatchExceptionErrorId, outcome.Err.Error(), policyFor(command))
	}
}

func (s *Session) sendResponse(seq int, command string, body any) {
	resp := &successResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: s.seq.Next(), Type: "response"},
			Command:         command,
			RequestSeq:      seq,
			Success:         true,
		},
		Body: body,
	}

	s.logTraffic("To client", resp)
	s.send(resp)
}

func (s *Session) sendErrorResponse(ctx context.Context, seq int, command string, errorId int, text string, policy responsePolicy) {
	if !policy.verbatim {
		text = fmt.Sprintf("%s %s", adapterTag, text)
	}

	s.sendProtocolErrorResponse(ctx, seq, command, dap.ErrorMessage{
		Id:            errorId,
		Format:        text,
		SendTelemetry: policy.sendTelemetry,
	})
}

func (s *Session) sendProtocolErrorResponse(ctx context.Context, seq int, command string, errMsg dap.ErrorMessage) {
	errorResponsesCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Int("errorId", errMsg.Id),
	))

	resp := &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: s.seq.Next(), Type: "response"},
			Command:         command,
			RequestSeq:      seq,
			Success:         false,
			Message:         errMsg.Format,
		},
		Body: dap.ErrorResponseBody{
			Error: &errMsg,
		},
	}

	s.logTraffic("To client", resp)
	s.send(resp)
}

// send writes a message to the transport. Failures caused by the session
// being closed are expected during teardown and demoted to debug logging.
func (s *Session) send(msg dap.Message) {
	if s.closed.Load() {
		s.log.V(1).Info("Discarding message for closed session", "type", fmt.Sprintf("%T", msg))
		return
	}

	if writeErr := s.transport.WriteMessage(msg); writeErr != nil {
		if s.closed.Load() ||
			errors.Is(writeErr, ErrTransportClosed) ||
			errors.Is(writeErr, io.ErrClosedPipe) ||
			errors.Is(writeErr, net.ErrClosed) {
			s.log.V(1).Info("Discarding message for closed session", "type", fmt.Sprintf("%T", msg))
			return
		}

		s.log.Error(writeErr, "Failed to send message to client", "type", fmt.Sprintf("%T", msg))
	}
}

// logTraffic records a protocol message at Info level. Payloads are included
// so that a diagnostics log alone is enough to reconstruct a session.
func (s *Session) logTraffic(direction string, msg dap.Message) {
	payload, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		s.log.Info(direction, "type", fmt.Sprintf("%T", msg), "payload", fmt.Sprintf("%+v", msg))
		return
	}

	s.log.Info(direction, "type", fmt.Sprintf("%T", msg), "payload", string(payload))
}
