package logger

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/rafaeljc/phishguard/internal/config"
)

// ShutdownFunc flushes and releases logging resources.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup builds the process logger. For the "otlp" format, records are exported to an
// OpenTelemetry collector (configured via the standard OTEL_EXPORTER_OTLP_* variables);
// any other format returns New(cfg) and a no-op shutdown.
//
// The returned ShutdownFunc must be called before exit so batched records are flushed.
func Setup(ctx context.Context, cfg *config.AppConfig) (*slog.Logger, ShutdownFunc, error) {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}
	if cfg.LogFormat != config.LogFormatOTLP {
		return New(cfg), noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Name),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create otlp log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level:   parseLevel(cfg.LogLevel),
		handler: otelslog.NewHandler(cfg.Name, otelslog.WithLoggerProvider(provider)),
	}

	return withIdentity(slog.New(handler), cfg), provider.Shutdown, nil
}

// levelHandler filters records below level before they reach the wrapped handler.
// The otelslog bridge forwards every level to the provider.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}
