package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSentinelMatchesByKind(t *testing.T) {
	errBadQty := Validation("invalid_quantity", "quantity must not be negative")

	wrapped := fmt.Errorf("add item: %w", errBadQty)
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.True(t, errors.Is(wrapped, errBadQty))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, "invalid_quantity", CodeOf(wrapped))
}

func TestWithMessageKeepsSentinelIdentity(t *testing.T) {
	errNotDraft := PreconditionFailed("invoice_not_draft", "")

	err := WithMessage(errNotDraft, "invoice is issued")
	assert.True(t, errors.Is(err, errNotDraft))
	assert.True(t, errors.Is(err, ErrPreconditionFailed))
	assert.Equal(t, "invoice is issued", MessageOf(err))
}

func TestDistinctSentinelsDoNotMatch(t *testing.T) {
	a := NotFound("invoice_not_found", "")
	b := NotFound("customer_not_found", "")

	assert.False(t, errors.Is(a, b))
	assert.True(t, errors.Is(a, ErrNotFound))
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", MessageOf(err))
}
