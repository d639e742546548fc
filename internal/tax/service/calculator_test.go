package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/ledgerbook/internal/config"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	vat := &taxdomain.TaxRate{PercentageBasisPoints: 2000, Active: true}

	tests := []struct {
		name     string
		base     int64
		rate     *taxdomain.TaxRate
		behavior taxdomain.TaxBehavior
		method   string
		want     Result
	}{
		{
			name:     "exclusive adds on top",
			base:     20000,
			rate:     vat,
			behavior: taxdomain.TaxBehaviorExclusive,
			want:     Result{TaxAmount: 4000, Net: 20000, LineTotal: 24000, Applied: true},
		},
		{
			name:     "inclusive gross convention",
			base:     20000,
			rate:     vat,
			behavior: taxdomain.TaxBehaviorInclusive,
			method:   config.InclusiveTaxGross,
			want:     Result{TaxAmount: 4000, Net: 16000, LineTotal: 20000, Applied: true},
		},
		{
			name:     "inclusive extract convention",
			base:     12000,
			rate:     vat,
			behavior: taxdomain.TaxBehaviorInclusive,
			method:   config.InclusiveTaxExtract,
			want:     Result{TaxAmount: 2000, Net: 10000, LineTotal: 12000, Applied: true},
		},
		{
			name:     "rounds half up",
			base:     1025,
			rate:     &taxdomain.TaxRate{PercentageBasisPoints: 1000, Active: true},
			behavior: taxdomain.TaxBehaviorExclusive,
			want:     Result{TaxAmount: 103, Net: 1025, LineTotal: 1128, Applied: true},
		},
		{
			name:     "behavior falls back to the rate flag",
			base:     12000,
			rate:     &taxdomain.TaxRate{PercentageBasisPoints: 2000, Active: true, Inclusive: true},
			method:   config.InclusiveTaxExtract,
			want:     Result{TaxAmount: 2000, Net: 10000, LineTotal: 12000, Applied: true},
		},
		{
			name:     "no rate",
			base:     500,
			behavior: taxdomain.TaxBehaviorExclusive,
			want:     Result{Net: 500, LineTotal: 500},
		},
		{
			name:     "inactive rate",
			base:     500,
			rate:     &taxdomain.TaxRate{PercentageBasisPoints: 2000},
			behavior: taxdomain.TaxBehaviorExclusive,
			want:     Result{Net: 500, LineTotal: 500},
		},
		{
			name: "outside window",
			base: 500,
			rate: &taxdomain.TaxRate{PercentageBasisPoints: 2000, Active: true, ValidTo: &now},
			want: Result{Net: 500, LineTotal: 500},
		},
		{
			name:     "zero base",
			base:     0,
			rate:     vat,
			behavior: taxdomain.TaxBehaviorExclusive,
			want:     Result{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.base, tt.rate, tt.behavior, now, tt.method))
		})
	}
}
