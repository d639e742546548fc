package service

import (
	"testing"

	"github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumberRoundTrip(t *testing.T) {
	scope := domain.Scope{OrgID: 42, DocumentType: domain.DocumentTypeInvoice, Year: 2026}

	number := FormatNumber(scope, 7, 4)
	assert.Regexp(t, `^2026-0007-[0-9a-f]{8}$`, number)

	year, seq, hash, err := ParseNumber(number)
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, int64(7), seq)
	assert.Len(t, hash, 8)

	require.NoError(t, VerifyNumber(domain.Scope{OrgID: 42, DocumentType: domain.DocumentTypeInvoice}, number))
}

func TestFormatNumberPadding(t *testing.T) {
	scope := domain.Scope{OrgID: 1, DocumentType: domain.DocumentTypeCreditNote, Year: 2026}
	assert.Regexp(t, `^2026-000123-`, FormatNumber(scope, 123, 6))
	// Widths below four are raised to four.
	assert.Regexp(t, `^2026-0001-`, FormatNumber(scope, 1, 2))
	// Values wider than the pad are never truncated.
	assert.Regexp(t, `^2026-123456-`, FormatNumber(scope, 123456, 4))
}

func TestHashBindsOrgAndType(t *testing.T) {
	scope := domain.Scope{OrgID: 42, DocumentType: domain.DocumentTypeInvoice, Year: 2026}
	number := FormatNumber(scope, 1, 4)

	err := VerifyNumber(domain.Scope{OrgID: 43, DocumentType: domain.DocumentTypeInvoice}, number)
	assert.ErrorIs(t, err, domain.ErrNumberMismatch)

	err = VerifyNumber(domain.Scope{OrgID: 42, DocumentType: domain.DocumentTypeCreditNote}, number)
	assert.ErrorIs(t, err, domain.ErrNumberMismatch)
}

func TestParseNumberRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"2026-0001",
		"26-0001-abcdef01",
		"2026-001-abcdef01",
		"2026-0000-abcdef01",
		"2026-0001-ABCDEF01",
		"2026-0001-zzzzzzzz",
	} {
		_, _, _, err := ParseNumber(raw)
		assert.ErrorIs(t, err, domain.ErrMalformedNumber, raw)
	}
}
