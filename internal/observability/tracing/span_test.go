package tracing

import (
	"errors"
	"testing"

	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("invoice_id", "1"),
		attribute.String("customer_email", "a@b.c"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("invoice_id"), attrs[0].Key)
}

func TestSafeErrorUsesCode(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(apperr.Validation("invalid_quantity", "qty -1 for jane@example.com")), "invalid_quantity")
	assert.EqualError(t, SafeError(errors.New("pq: secret")), "internal_error")
}
