package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	percent := func(bp int64) *domain.Discount {
		return &domain.Discount{Type: domain.TypePercent, Value: bp, Active: true}
	}
	fixed := func(amount int64) *domain.Discount {
		return &domain.Discount{Type: domain.TypeFixed, Value: amount, Currency: "USD", Active: true}
	}

	tests := []struct {
		name    string
		in      domain.EvaluateInput
		amount  int64
		applied bool
		reason  domain.Reason
	}{
		{
			name:    "percent in basis points",
			in:      domain.EvaluateInput{Discount: percent(1000), Base: 20000, At: now},
			amount:  2000,
			applied: true,
		},
		{
			name:    "percent rounds half up",
			in:      domain.EvaluateInput{Discount: percent(1250), Base: 333, At: now},
			amount:  42,
			applied: true,
		},
		{
			name:    "fixed capped at base",
			in:      domain.EvaluateInput{Discount: fixed(5000), Base: 3000, Currency: "usd", At: now},
			amount:  3000,
			applied: true,
		},
		{
			name:   "fixed currency mismatch",
			in:     domain.EvaluateInput{Discount: fixed(500), Base: 3000, Currency: "EUR", At: now},
			reason: domain.ReasonCurrencyMismatch,
		},
		{
			name:   "inactive",
			in:     domain.EvaluateInput{Discount: &domain.Discount{Type: domain.TypePercent, Value: 100}, Base: 100, At: now},
			reason: domain.ReasonInactive,
		},
		{
			name: "not yet valid",
			in: domain.EvaluateInput{
				Discount: &domain.Discount{Type: domain.TypePercent, Value: 100, Active: true, ValidFrom: ptr(now.Add(time.Hour))},
				Base:     100,
				At:       now,
			},
			reason: domain.ReasonNotYetValid,
		},
		{
			name: "valid_to is exclusive",
			in: domain.EvaluateInput{
				Discount: &domain.Discount{Type: domain.TypePercent, Value: 100, Active: true, ValidTo: ptr(now)},
				Base:     100,
				At:       now,
			},
			reason: domain.ReasonExpired,
		},
		{
			name: "global limit reached",
			in: domain.EvaluateInput{
				Discount: &domain.Discount{Type: domain.TypePercent, Value: 100, Active: true, MaxRedemptions: ptr(int64(2)), CurrentRedemptions: 2},
				Base:     100,
				At:       now,
			},
			reason: domain.ReasonMaxRedemptions,
		},
		{
			name: "customer limit reached",
			in: domain.EvaluateInput{
				Discount:            &domain.Discount{Type: domain.TypePercent, Value: 100, Active: true, MaxRedemptionsPerCustomer: ptr(int64(1))},
				Base:                100,
				CustomerRedemptions: 1,
				At:                  now,
			},
			reason: domain.ReasonCustomerLimit,
		},
		{
			name: "minimum uses the qualifying amount",
			in: domain.EvaluateInput{
				Discount:         &domain.Discount{Type: domain.TypePercent, Value: 1000, Active: true, MinimumAmount: 5000},
				Base:             1000,
				QualifyingAmount: 6000,
				At:               now,
			},
			amount:  100,
			applied: true,
		},
		{
			name: "minimum not met",
			in: domain.EvaluateInput{
				Discount: &domain.Discount{Type: domain.TypePercent, Value: 1000, Active: true, MinimumAmount: 5000},
				Base:     1000,
				At:       now,
			},
			reason: domain.ReasonMinimumAmount,
		},
		{
			name:   "zero base",
			in:     domain.EvaluateInput{Discount: percent(1000), Base: 0, At: now},
			reason: domain.ReasonNothingToDiscount,
		},
		{
			name:   "missing discount",
			in:     domain.EvaluateInput{Base: 100, At: now},
			reason: domain.ReasonNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in)
			assert.Equal(t, tt.amount, got.Amount)
			assert.Equal(t, tt.applied, got.Applied)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}
