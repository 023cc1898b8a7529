package observability

import (
	"github.com/smallbiznis/billingcore/internal/observability/logger"
	"github.com/smallbiznis/billingcore/internal/observability/metrics"
	"github.com/smallbiznis/billingcore/internal/observability/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger and the billing instruments consumed by
// the lifecycle services, and installs the global tracer provider.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Metrics,
		Config.Tracing,
		logger.New,
		metrics.NewProvider,
		metrics.New,
		tracing.NewProvider,
	),
	fx.Invoke(func(trace.TracerProvider) {}),
)
