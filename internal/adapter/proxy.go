// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package adapter

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/microsoft/chromedap/pkg/resiliency"
)

// Outcome is the result of dispatching one request to an engine: a response
// body (possibly nil) or an error, never both.
type Outcome struct {
	Body any
	Err  error
}

// Engine is a debugging backend capable of executing protocol requests.
//
// Dispatch hands one request to the engine and returns a channel that delivers
// exactly one Outcome when the work completes. Outcomes for different requests
// may arrive in any order. An engine that has no handler for the request's
// command reports ErrUnknownCommand.
//
// SetEventHandler installs the callback the engine uses to raise events. It is
// called once, before the first Dispatch.
type Engine interface {
	Dispatch(ctx context.Context, req dap.RequestMessage) <-chan Outcome
	SetEventHandler(handler func(ev dap.EventMessage))
}

// Proxy connects a protocol session to an engine, running every message
// through the registered transformers: requests on the way in, response bodies
// and events on the way out. Failed outcomes bypass the outbound stages so the
// error text reaches the client untouched.
type Proxy struct {
	engine       Engine
	transformers []Transformer
	log          logr.Logger

	sendEvent func(ev dap.EventMessage)
}

// NewProxy creates a Proxy over the given engine and registers itself as the
// engine's event handler. Transformers run in the order given.
func NewProxy(engine Engine, transformers []Transformer, log logr.Logger) *Proxy {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	p := &Proxy{
		engine:       engine,
		transformers: transformers,
		log:          log,
	}
	engine.SetEventHandler(p.Notify)
	return p
}

// SetEventSink installs the function used to deliver transformed events to the
// client. It must be called before the session starts reading requests; events
// raised before a sink is installed are dropped.
func (p *Proxy) SetEventSink(sink func(ev dap.EventMessage)) {
	p.sendEvent = sink
}

// Dispatch runs the request through the inbound transformers and hands it to
// the engine. The returned channel delivers exactly one Outcome. A non-nil
// error means the dispatch mechanism itself failed (a transformer or the
// engine panicked synchronously) and no Outcome will arrive.
func (p *Proxy) Dispatch(ctx context.Context, req dap.RequestMessage) (_ <-chan Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = resiliency.MakePanicError(r, p.log)
		}
	}()

	for _, t := range p.transformers {
		t.TransformRequest(req)
	}

	engineOutcomes := p.engine.Dispatch(ctx, req)
	command := req.GetRequest().Command

	outcomes := make(chan Outcome, 1)
	go func() {
		outcome, ok := <-engineOutcomes
		if !ok {
			outcome = Outcome{Err: fmt.Errorf("engine did not produce a result for %q", command)}
		}
		if outcome.Err == nil {
			if transformErr := p.transformResponse(command, outcome.Body); transformErr != nil {
				outcome = Outcome{Err: transformErr}
			}
		}
		outcomes <- outcome
	}()

	return outcomes, nil
}

// Notify runs an engine event through the outbound stages and delivers it to
// the client. A stage panic is logged and the event is dropped rather than
// delivered half-transformed.
func (p *Proxy) Notify(ev dap.EventMessage) {
	defer func() {
		if r := recover(); r != nil {
			_ = resiliency.MakePanicError(r, p.log)
		}
	}()

	for _, t := range p.transformers {
		t.TransformEvent(ev)
	}

	if p.sendEvent == nil {
		p.log.V(1).Info("Dropping event raised before the session was attached", "event", ev.GetEvent().Event)
		return
	}

	p.sendEvent(ev)
}

// transformResponse runs the outbound stages over a successful response body,
// converting a stage panic into an error.
func (p *Proxy) transformResponse(command string, body any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = resiliency.MakePanicError(r, p.log)
		}
	}()

	for _, t := range p.transformers {
		t.TransformResponse(command, body)
	}
	return nil
}
