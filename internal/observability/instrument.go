// Package observability wires the process-wide slog handler.
//
// Text format targets humans on stderr. JSON format routes records through
// the OpenTelemetry log bridge: to an OTLP collector when
// OTEL_EXPORTER_OTLP_ENDPOINT is configured, otherwise to stdout in OTLP
// encoding. Severity filtering happens in the pipeline via minsev so the
// bridge handler can stay level-agnostic.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const scopeName = "commons-cli"

// provider holds the active logger provider for Shutdown flushing.
var provider *sdklog.LoggerProvider

// Instrument installs the process-wide default slog handler.
func Instrument(level slog.Level, format string) error {
	switch format {
	case "text", "":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		return nil
	case "json":
		exporter, err := newExporter(context.Background())
		if err != nil {
			return fmt.Errorf("creating log exporter: %w", err)
		}

		processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
		provider = sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

		slog.SetDefault(otelslog.NewLogger(scopeName, otelslog.WithLoggerProvider(provider)))
		return nil
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
}

// Shutdown flushes buffered log records. Safe to call when Instrument set
// up a plain text handler.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// newExporter selects the exporter from the standard OTLP environment
// variables, falling back to stdout OTLP encoding.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return stdoutlog.New()
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
		return otlploggrpc.New(ctx)
	}
	return otlploghttp.New(ctx)
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
