// Copyright (c) Microsoft Corporation. All rights reserved.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/microsoft/chromedap/pkg/slices"
)

const suppressIfSuccessful = "suppressIfSuccessful"

// MarkSuppressIfSuccessful marks the current span so that it is only exported
// if it ends with an error status. Per-request spans use this to keep the
// telemetry output focused on failures.
func MarkSuppressIfSuccessful(ctx context.Context) {
	SetAttribute(ctx, suppressIfSuccessful, true)
}

type suppressIfSuccessfulSpanProcessor struct {
	innerSpanProcessor sdktrace.SpanProcessor
}

func (p *suppressIfSuccessfulSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	p.innerSpanProcessor.OnStart(ctx, s)
}

func (p *suppressIfSuccessfulSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	suppressIfSuccessful := slices.Any(s.Attributes(), func(attr attribute.KeyValue) bool {
		return attr.Key == suppressIfSuccessful && attr.Valid() && attr.Value.AsBool()
	})

	if !suppressIfSuccessful || s.Status().Code == codes.Error {
		p.innerSpanProcessor.OnEnd(s)
	}
}

func (p *suppressIfSuccessfulSpanProcessor) Shutdown(ctx context.Context) error {
	return p.innerSpanProcessor.Shutdown(ctx)
}

func (p *suppressIfSuccessfulSpanProcessor) ForceFlush(ctx context.Context) error {
	return p.innerSpanProcessor.ForceFlush(ctx)
}

func NewSuppressIfSuccessfulSpanProcessor(innerSpanProcessor sdktrace.SpanProcessor) sdktrace.SpanProcessor {
	return &suppressIfSuccessfulSpanProcessor{
		innerSpanProcessor: innerSpanProcessor,
	}
}
