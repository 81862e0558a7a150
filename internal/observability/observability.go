// Package observability sets up the process-wide structured logger.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Instrument installs the default slog logger for the given level and
// format ("text" or "json").
//
// When OTEL_EXPORTER_OTLP_ENDPOINT is set, log records are exported
// over OTLP/HTTP through the OpenTelemetry log SDK instead, filtered
// to the configured minimum severity. Setting CREDKEEPER_LOG_STDOUT_OTLP
// swaps the exporter for the stdout one, useful when debugging the
// pipeline itself.
func Instrument(level slog.Level, format string) error {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		return instrumentOTLP(level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func instrumentOTLP(level slog.Level) error {
	ctx := context.Background()

	var exporter sdklog.Exporter
	var err error
	if os.Getenv("CREDKEEPER_LOG_STDOUT_OTLP") != "" {
		exporter, err = stdoutlog.New()
	} else {
		exporter, err = otlploghttp.New(ctx)
	}
	if err != nil {
		return fmt.Errorf("creating log exporter: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	slog.SetDefault(slog.New(otelslog.NewHandler("credkeeper", otelslog.WithLoggerProvider(provider))))
	return nil
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
