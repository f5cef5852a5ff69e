package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	invoicesCreated     metric.Int64Counter
	workflowTransitions metric.Int64Counter
	rateRefreshes       metric.Int64Counter
	rateFallbacks       metric.Int64Counter
	rateStale           metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "estate"
	}
	meter := provider.Meter(name)

	invoicesCreated, err := meter.Int64Counter("estate_invoices_created_total")
	if err != nil {
		return nil, err
	}
	workflowTransitions, err := meter.Int64Counter("estate_workflow_transitions_total")
	if err != nil {
		return nil, err
	}
	rateRefreshes, err := meter.Int64Counter("estate_exchange_rate_refresh_total")
	if err != nil {
		return nil, err
	}
	rateFallbacks, err := meter.Int64Counter("estate_pricing_rate_fallback_total")
	if err != nil {
		return nil, err
	}
	rateStale, err := meter.Int64Counter("estate_pricing_rate_stale_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("estate_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesCreated:     invoicesCreated,
		workflowTransitions: workflowTransitions,
		rateRefreshes:       rateRefreshes,
		rateFallbacks:       rateFallbacks,
		rateStale:           rateStale,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordInvoiceCreated increments invoice issuance counts.
func (m *Metrics) RecordInvoiceCreated(ctx context.Context, countryCode, currencyCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("country_code", strings.TrimSpace(countryCode)),
		attribute.String("currency_code", strings.TrimSpace(currencyCode)),
	)
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWorkflowTransition increments listing workflow transition counts.
func (m *Metrics) RecordWorkflowTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)
	m.workflowTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateRefresh counts exchange rate refresh attempts by outcome.
func (m *Metrics) RecordRateRefresh(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.rateRefreshes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateFallback counts conversions served at 1:1 parity.
func (m *Metrics) RecordRateFallback(ctx context.Context, currencyCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency_code", strings.TrimSpace(currencyCode)))
	m.rateFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateStale counts conversions served from a snapshot past its max age.
func (m *Metrics) RecordRateStale(ctx context.Context, currencyCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency_code", strings.TrimSpace(currencyCode)))
	m.rateStale.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"country_code":  {},
	"currency_code": {},
	"from_status":   {},
	"to_status":     {},
	"source":        {},
	"outcome":       {},
	"endpoint":      {},
	"status_code":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
