package service

import (
	"strings"

	"github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

// Evaluate decides how much a discount takes off in.Base. It never fails;
// every rejected check yields a zero amount and the reason.
func Evaluate(in domain.EvaluateInput) domain.Evaluation {
	d := in.Discount
	if d == nil {
		return domain.Evaluation{Reason: domain.ReasonNotFound}
	}
	if reason := checkEligibility(d, in); reason != domain.ReasonNone {
		return domain.Evaluation{Reason: reason}
	}
	if in.Base <= 0 {
		return domain.Evaluation{Reason: domain.ReasonNothingToDiscount}
	}

	var amount int64
	switch d.Type {
	case domain.TypePercent:
		amount = money.ApplyBasisPoints(in.Base, d.Value)
	case domain.TypeFixed:
		amount = d.Value
	}
	amount = money.Min(money.Clamp0(amount), in.Base)
	if amount == 0 {
		return domain.Evaluation{Reason: domain.ReasonNothingToDiscount}
	}
	return domain.Evaluation{Amount: amount, Applied: true}
}

func checkEligibility(d *domain.Discount, in domain.EvaluateInput) domain.Reason {
	if !d.Active {
		return domain.ReasonInactive
	}
	if d.ValidFrom != nil && in.At.Before(*d.ValidFrom) {
		return domain.ReasonNotYetValid
	}
	if d.ValidTo != nil && !in.At.Before(*d.ValidTo) {
		return domain.ReasonExpired
	}
	if d.MaxRedemptions != nil && d.CurrentRedemptions >= *d.MaxRedemptions {
		return domain.ReasonMaxRedemptions
	}
	if d.MaxRedemptionsPerCustomer != nil && in.CustomerRedemptions >= *d.MaxRedemptionsPerCustomer {
		return domain.ReasonCustomerLimit
	}
	qualifying := in.QualifyingAmount
	if qualifying == 0 {
		qualifying = in.Base
	}
	if d.MinimumAmount > 0 && qualifying < d.MinimumAmount {
		return domain.ReasonMinimumAmount
	}
	if d.Type == domain.TypeFixed && !strings.EqualFold(d.Currency, in.Currency) {
		return domain.ReasonCurrencyMismatch
	}
	return domain.ReasonNone
}
