package service

import (
	"time"

	"github.com/smallbiznis/ledgerbook/internal/config"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

// Result is the tax outcome for one line.
// For exclusive lines Net == base and LineTotal == base + TaxAmount.
// For inclusive lines LineTotal == base and Net == base - TaxAmount.
type Result struct {
	TaxAmount int64
	Net       int64
	LineTotal int64
	Applied   bool
}

// Calculate applies rate to base. It never fails: a nil rate, an inactive
// rate, or a rate outside its window at `at` yields zero tax.
// An empty behavior falls back to the rate's own inclusive flag.
// method selects how inclusive tax is derived (config.InclusiveTaxExtract or
// config.InclusiveTaxGross).
func Calculate(base int64, rate *taxdomain.TaxRate, behavior taxdomain.TaxBehavior, at time.Time, method string) Result {
	noTax := Result{Net: base, LineTotal: base}
	if base <= 0 || !rate.EffectiveAt(at) || rate.PercentageBasisPoints == 0 {
		return noTax
	}

	if behavior == "" {
		behavior = taxdomain.TaxBehaviorExclusive
		if rate.Inclusive {
			behavior = taxdomain.TaxBehaviorInclusive
		}
	}

	bp := rate.PercentageBasisPoints
	if behavior == taxdomain.TaxBehaviorInclusive {
		var tax int64
		if method == config.InclusiveTaxGross {
			tax = money.ApplyBasisPoints(base, bp)
		} else {
			tax = money.ExtractInclusive(base, bp)
		}
		tax = money.Min(tax, base)
		return Result{TaxAmount: tax, Net: base - tax, LineTotal: base, Applied: true}
	}

	tax := money.ApplyBasisPoints(base, bp)
	return Result{TaxAmount: tax, Net: base, LineTotal: base + tax, Applied: true}
}
