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
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	Exporter         string
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	ListenAddr       string
}

const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Metrics exposes payment instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	gatewayCalls         metric.Int64Counter
	gatewayLatency       metric.Float64Histogram
	auditRecords         metric.Int64Counter
	auditWriteFailures   metric.Int64Counter
	duplicateSubmissions metric.Int64Counter
	refundRejections     metric.Int64Counter
	reconciliations      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	reader, err := newReader(cfg)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("exporter", cfg.Exporter),
			zap.String("endpoint", cfg.ExporterEndpoint),
		)
	}

	return provider, nil
}

// New configures the payment instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "paycore"
	}
	meter := provider.Meter(name)

	gatewayCalls, err := meter.Int64Counter("paycore_gateway_calls_total",
		metric.WithDescription("Outbound gateway calls by outcome"))
	if err != nil {
		return nil, err
	}
	gatewayLatency, err := meter.Float64Histogram("paycore_gateway_call_duration_seconds",
		metric.WithDescription("Outbound gateway call latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	auditRecords, err := meter.Int64Counter("paycore_processor_response_records_total")
	if err != nil {
		return nil, err
	}
	auditWriteFailures, err := meter.Int64Counter("paycore_processor_response_write_failures_total")
	if err != nil {
		return nil, err
	}
	duplicateSubmissions, err := meter.Int64Counter("paycore_duplicate_submissions_total")
	if err != nil {
		return nil, err
	}
	refundRejections, err := meter.Int64Counter("paycore_refund_rejections_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("paycore_reconciliation_resolutions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatewayCalls:         gatewayCalls,
		gatewayLatency:       gatewayLatency,
		auditRecords:         auditRecords,
		auditWriteFailures:   auditWriteFailures,
		duplicateSubmissions: duplicateSubmissions,
		refundRejections:     refundRejections,
		reconciliations:      reconciliations,
	}, nil
}

// RecordGatewayCall counts a gateway exchange and its latency.
func (m *Metrics) RecordGatewayCall(ctx context.Context, gateway, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.gatewayCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.gatewayLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAuditRecord(ctx context.Context, gateway, direction, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.auditRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAuditWriteFailure(ctx context.Context, gateway, direction string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("direction", strings.TrimSpace(direction)),
	)
	m.auditWriteFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDuplicateSubmission(ctx context.Context, gateway string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("gateway", strings.TrimSpace(gateway)))
	m.duplicateSubmissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRefundRejected(ctx context.Context, gateway, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.refundRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReconciliation(ctx context.Context, gateway, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newReader(cfg Config) (sdkmetric.Reader, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Exporter), ExporterPrometheus) {
		return otelprom.New()
	}
	exporter, err := newOTLPExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)), nil
}

func newOTLPExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
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
	"gateway":   {},
	"operation": {},
	"outcome":   {},
	"direction": {},
	"reason":    {},
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
