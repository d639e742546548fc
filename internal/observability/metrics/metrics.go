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

// Metrics exposes ledger business instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	invoicesIssued      metric.Int64Counter
	invoiceTransitions  metric.Int64Counter
	paymentsRecorded    metric.Int64Counter
	refundsRecorded     metric.Int64Counter
	creditApplied       metric.Int64Counter
	sequenceAllocations metric.Int64Counter
	recurringGenerated  metric.Int64Counter
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

// New configures the ledger instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ledgerbook"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.invoicesIssued, "ledgerbook_invoices_issued_total", "Invoices issued."},
		{&m.invoiceTransitions, "ledgerbook_invoice_transitions_total", "Invoice status transitions."},
		{&m.paymentsRecorded, "ledgerbook_payments_recorded_total", "Payments recorded by status."},
		{&m.refundsRecorded, "ledgerbook_refunds_recorded_total", "Refunds recorded."},
		{&m.creditApplied, "ledgerbook_credit_applied_minor_units_total", "Credit note amounts applied, in minor units."},
		{&m.sequenceAllocations, "ledgerbook_sequence_allocations_total", "Document numbers allocated."},
		{&m.recurringGenerated, "ledgerbook_recurring_generated_total", "Invoices generated from recurring templates."},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *Metrics) RecordInvoiceIssued(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.invoicesIssued.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("currency", currency),
	)...))
}

// RecordInvoiceTransition counts a status change, e.g. issued -> partially_paid.
func (m *Metrics) RecordInvoiceTransition(ctx context.Context, from, to string) {
	if m == nil || from == to {
		return
	}
	m.invoiceTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	)...))
}

func (m *Metrics) RecordPayment(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", status),
	)...))
}

func (m *Metrics) RecordRefund(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.refundsRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
	)...))
}

func (m *Metrics) RecordCreditApplied(ctx context.Context, currency string, amount int64) {
	if m == nil || amount == 0 {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.creditApplied.Add(ctx, amount, metric.WithAttributes(FilterAttributes(
		attribute.String("currency", currency),
	)...))
}

func (m *Metrics) RecordSequenceAllocation(ctx context.Context, documentType string) {
	if m == nil {
		return
	}
	m.sequenceAllocations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("document_type", documentType),
	)...))
}

func (m *Metrics) RecordRecurringGenerated(ctx context.Context, issued bool) {
	if m == nil {
		return
	}
	m.recurringGenerated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("issued", issued)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"currency":      {},
	"provider":      {},
	"status":        {},
	"from_status":   {},
	"to_status":     {},
	"document_type": {},
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
