/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package adapter

import (
	"github.com/google/go-dap"
)

// Transformer mutates protocol messages as they travel between the client and
// the engine. Requests pass through every transformer in registration order
// before the engine sees them; response bodies and events pass through the
// same transformers on the way out. Transformers mutate message payloads in
// place and must never change message identity (sequence numbers, command
// names, message types).
//
// Implementations may keep session-scoped state (for example, a numbering
// convention declared during initialize) but must not hold per-request state:
// responses can complete in any order relative to their requests.
type Transformer interface {
	// TransformRequest adjusts an inbound request before dispatch.
	TransformRequest(req dap.RequestMessage)

	// TransformResponse adjusts an outbound response body after the engine has
	// produced it. command is the command of the originating request; body is
	// the body the engine returned and may be nil.
	TransformResponse(command string, body any)

	// TransformEvent adjusts an outbound event before it is sent to the client.
	TransformEvent(ev dap.EventMessage)
}

// LineNumberTransformer converts line numbers between the client's numbering
// convention and the zero-based convention used by the debugging target.
//
// The client declares its convention in the initialize request. Until that
// request is seen the transformer assumes one-based lines, which is what every
// known client uses.
type LineNumberTransformer struct {
	clientLinesStartAt1 bool
}

// NewLineNumberTransformer creates a LineNumberTransformer assuming a
// one-based client.
func NewLineNumberTransformer() *LineNumberTransformer {
	return &LineNumberTransformer{clientLinesStartAt1: true}
}

func (t *LineNumberTransformer) TransformRequest(req dap.RequestMessage) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		t.clientLinesStartAt1 = r.Arguments.LinesStartAt1

	case *dap.SetBreakpointsRequest:
		for i := range r.Arguments.Breakpoints {
			r.Arguments.Breakpoints[i].Line = t.toTargetLine(r.Arguments.Breakpoints[i].Line)
		}
		for i := range r.Arguments.Lines {
			r.Arguments.Lines[i] = t.toTargetLine(r.Arguments.Lines[i])
		}
	}
}

func (t *LineNumberTransformer) TransformResponse(command string, body any) {
	switch b := body.(type) {
	case *dap.SetBreakpointsResponseBody:
		for i := range b.Breakpoints {
			b.Breakpoints[i].Line = t.toClientLine(b.Breakpoints[i].Line)
		}

	case *dap.StackTraceResponseBody:
		for i := range b.StackFrames {
			b.StackFrames[i].Line = t.toClientLine(b.StackFrames[i].Line)
		}
	}
}

func (t *LineNumberTransformer) TransformEvent(ev dap.EventMessage) {
	if e, ok := ev.(*dap.BreakpointEvent); ok {
		e.Body.Breakpoint.Line = t.toClientLine(e.Body.Breakpoint.Line)
	}
}

func (t *LineNumberTransformer) toTargetLine(line int) int {
	if t.clientLinesStartAt1 {
		return line - 1
	}
	return line
}

func (t *LineNumberTransformer) toClientLine(line int) int {
	if t.clientLinesStartAt1 {
		return line + 1
	}
	return line
}
