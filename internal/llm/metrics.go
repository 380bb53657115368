package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const costMeterName = "github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"

var (
	costRequestHistogram  metric.Float64Histogram
	costMetricsOnce       sync.Once
	costMetricsRegistered bool
)

func initCostMetrics() {
	meter := otel.Meter(costMeterName)
	var err error
	costRequestHistogram, err = meter.Float64Histogram(
		"fuels.cost.request",
		metric.WithDescription("Cost in EUR per reasoning-service request"),
		metric.WithUnit("eur"),
	)
	if err != nil {
		return
	}
	costMetricsRegistered = true
}

// RecordCostMetrics records cost per request after a reasoning-service call.
// The agent and model attributes allow per-agent spend filtering in
// observability backends; purpose distinguishes the judgment loop from the
// ETA parser.
func RecordCostMetrics(ctx context.Context, costEUR float64, agent, model, purpose string) {
	costMetricsOnce.Do(initCostMetrics)
	if !costMetricsRegistered {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("model", model),
		attribute.String("purpose", purpose),
	)
	costRequestHistogram.Record(ctx, costEUR, attrs)
}
