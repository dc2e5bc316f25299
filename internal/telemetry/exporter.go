package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/chromedap/pkg/logger"
	"github.com/microsoft/chromedap/pkg/osutil"
)

// Telemetry is only exported when diagnostics logging is set to debug,
// and it always goes to files under the diagnostics log folder:
// stdout carries the protocol stream and stderr belongs to console logging.

func newTraceExporter(logName string) (sdktrace.SpanExporter, error) {
	logLevel, err := logger.GetDiagnosticsLogLevel()

	if err == nil && logLevel == zapcore.DebugLevel {
		telemetryFile, fileErr := openTelemetryFile(logName, "traces")
		if fileErr != nil {
			return nil, fileErr
		}

		return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(telemetryFile))
	} else {
		return discardExporter{}, nil
	}
}

func newMetricExporter(logName string) (sdkmetric.Exporter, error) {
	logLevel, err := logger.GetDiagnosticsLogLevel()

	if err == nil && logLevel == zapcore.DebugLevel {
		telemetryFile, fileErr := openTelemetryFile(logName, "metrics")
		if fileErr != nil {
			return nil, fileErr
		}

		enc := json.NewEncoder(telemetryFile)
		enc.SetIndent("", "  ")
		return stdoutmetric.New(stdoutmetric.WithEncoder(enc))
	} else {
		return discardExporter{}, nil
	}
}

func openTelemetryFile(logName string, kind string) (*os.File, error) {
	logFolder, err := logger.EnsureDiagnosticsLogsFolder()
	if err != nil {
		return nil, err
	}

	telemetryFileName := fmt.Sprintf("telemetry-%s-%s-%d-%d.json", kind, logName, time.Now().Unix(), os.Getpid())
	return os.OpenFile(filepath.Join(logFolder, telemetryFileName), os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_TRUNC, osutil.PermissionOnlyOwnerReadWrite)
}

type discardExporter struct{}

func (discardExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (discardExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	return nil
}

func (discardExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (discardExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (discardExporter) ForceFlush(context.Context) error {
	return nil
}

func (discardExporter) Shutdown(ctx context.Context) error {
	return nil
}
