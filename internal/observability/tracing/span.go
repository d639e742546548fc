package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/smallbiznis/ledgerbook"

// Start opens a span for a ledger operation, e.g. Start(ctx, "invoice.Issue").
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs...)...))
}

// End records err on the span (classified errors are not span failures) and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		kind := apperr.KindOf(err)
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		if kind == apperr.KindInternal {
			if safe := SafeError(err); safe != nil {
				span.RecordError(safe)
			}
			span.SetStatus(codes.Error, "internal error")
		}
	}
	span.End()
}

// ExtractContext reads remote span context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

var allowedAttributeKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"org_id":                  {},
	"invoice_id":              {},
	"payment_id":              {},
	"credit_note_id":          {},
	"recurring_invoice_id":    {},
	"document_type":           {},
	"job":                     {},
	"error.kind":              {},
}

// SafeAttributes drops attributes that may carry customer data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedAttributeKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError replaces an error with its classification code so messages
// containing customer data never leave the process.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(apperr.CodeOf(err))
}
