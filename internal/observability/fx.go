package observability

import (
	"github.com/smallbiznis/ledgerbook/internal/observability/logger"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires logging, tracing and the ledger metrics. The tracer provider
// is forced at startup so spans from the first request carry trace ids.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(announce),
)

func announce(cfg Config, log *zap.Logger, _ *sdktrace.TracerProvider, mc metrics.Config) {
	metrics.SchedulerWithConfig(mc)
	log.Info("observability ready",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.Bool("otlp_enabled", cfg.OtelEnabled),
		zap.String("otlp_protocol", cfg.OtelExporterProtocol),
		zap.Float64("sampling_ratio", cfg.OtelSamplingRatio),
	)
}
