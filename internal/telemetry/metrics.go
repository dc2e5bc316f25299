// Copyright (c) Microsoft Corporation. All rights reserved.

package telemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// NewInt64Counter creates a dimensionless, monotonically increasing counter.
// Instrument names are compile-time constants, so a creation failure is a
// programmer error and panics.
func NewInt64Counter(meter metric.Meter, name string, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}
	return counter
}

// NewInt64UpDownCounter creates a dimensionless counter that can decrease,
// for values like the number of sessions currently active.
func NewInt64UpDownCounter(meter metric.Meter, name string, description string) metric.Int64UpDownCounter {
	counter, err := meter.Int64UpDownCounter(name,
		metric.WithDescription(description),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}
	return counter
}
