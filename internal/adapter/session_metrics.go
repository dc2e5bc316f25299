// Copyright (c) Microsoft Corporation. All rights reserved.

package adapter

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/microsoft/chromedap/internal/telemetry"
)

var (
	requestsDispatchedCounter metric.Int64Counter
	errorResponsesCounter     metric.Int64Counter
	eventsEmittedCounter      metric.Int64Counter
	activeSessionsCounter     metric.Int64UpDownCounter
)

func init() {
	ts := telemetry.GetTelemetrySystem()
	sessionMeter := ts.MeterProvider.Meter("chromedap-session")

	requestsDispatchedCounter = telemetry.NewInt64Counter(sessionMeter, "requestsDispatched", "Number of client requests handed to the adapter proxy")
	errorResponsesCounter = telemetry.NewInt64Counter(sessionMeter, "errorResponses", "Number of error responses sent to the client")
	eventsEmittedCounter = telemetry.NewInt64Counter(sessionMeter, "eventsEmitted", "Number of events sent to the client")
	activeSessionsCounter = telemetry.NewInt64UpDownCounter(sessionMeter, "activeSessions", "Number of debug sessions currently running")
}
