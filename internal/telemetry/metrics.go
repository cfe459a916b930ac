package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if err := otelruntime.Start(otelruntime.WithMeterProvider(mp)); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// OrderMetrics counts order lifecycle outcomes. All methods are safe on a
// nil receiver so instrumentation stays optional in tests and tools.
type OrderMetrics struct {
	placed         metric.Int64Counter
	cancelled      metric.Int64Counter
	stockConflicts metric.Int64Counter
}

func NewOrderMetrics() (*OrderMetrics, error) {
	meter := otel.Meter("orders")

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"))
	if err != nil {
		return nil, err
	}
	stockConflicts, err := meter.Int64Counter("orders.stock_conflicts",
		metric.WithDescription("Placements rejected for insufficient stock"))
	if err != nil {
		return nil, err
	}

	return &OrderMetrics{
		placed:         placed,
		cancelled:      cancelled,
		stockConflicts: stockConflicts,
	}, nil
}

func (m *OrderMetrics) OrderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1)
}

func (m *OrderMetrics) OrderCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancelled.Add(ctx, 1)
}

func (m *OrderMetrics) StockConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.stockConflicts.Add(ctx, 1)
}
