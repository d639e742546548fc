package service

import (
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	discountservice "github.com/smallbiznis/ledgerbook/internal/discount/service"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	taxservice "github.com/smallbiznis/ledgerbook/internal/tax/service"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

// Lookups carries everything the aggregator reads. Missing entries mean the
// reference no longer resolves and the line gets no tax or no discount.
type Lookups struct {
	Rates               map[snowflake.ID]*taxdomain.TaxRate
	Discounts           map[snowflake.ID]*discountdomain.Discount
	CustomerRedemptions map[snowflake.ID]int64
}

type ComputeOptions struct {
	Behavior        taxdomain.TaxBehavior
	Currency        string
	At              time.Time
	InclusiveMethod string
	// DocumentDiscountID applies to items without their own discount.
	DocumentDiscountID *snowflake.ID
}

type Totals struct {
	Subtotal      int64
	DiscountTotal int64
	TaxTotal      int64
	Total         int64
	// Redemptions maps each discount that took something off to the amount.
	Redemptions map[snowflake.ID]int64
}

// LineContext is the per-line input of ComputeItem.
type LineContext struct {
	Rate       *taxdomain.TaxRate
	Discount   *discountdomain.Discount
	Qualifying int64
	// Budget caps a fixed document discount; nil means uncapped.
	Budget              *int64
	CustomerRedemptions int64
}

// ComputeItem fills the computed amounts of item. Discount comes first and
// reduces the taxable base.
func ComputeItem(item *invoicedomain.InvoiceItem, line LineContext, opt ComputeOptions) error {
	gross, err := money.LineAmount(item.Quantity, item.UnitAmount)
	if err != nil {
		if errors.Is(err, money.ErrInvalidQuantity) {
			return invoicedomain.ErrInvalidQuantity
		}
		return invoicedomain.ErrAmountOverflow
	}

	var discountAmount int64
	if line.Discount != nil {
		d := line.Discount
		if line.Budget != nil && d.Type == discountdomain.TypeFixed {
			capped := *d
			capped.Value = *line.Budget
			d = &capped
		}
		eval := discountservice.Evaluate(discountdomain.EvaluateInput{
			Discount:            d,
			Base:                gross,
			QualifyingAmount:    line.Qualifying,
			Currency:            opt.Currency,
			CustomerRedemptions: line.CustomerRedemptions,
			At:                  opt.At,
		})
		if eval.Applied {
			discountAmount = eval.Amount
		}
	}

	base := gross - discountAmount
	tax := taxservice.Calculate(base, line.Rate, opt.Behavior, opt.At, opt.InclusiveMethod)

	item.DiscountAmount = discountAmount
	item.TaxAmount = tax.TaxAmount
	item.Amount = tax.Net + discountAmount
	item.TotalAmount = tax.LineTotal
	return nil
}

// Recompute recalculates every item in place and returns the document totals.
// It reads nothing but its arguments, so the same items and lookups always
// give the same result.
func Recompute(items []*invoicedomain.InvoiceItem, lk Lookups, opt ComputeOptions) (Totals, error) {
	ordered := make([]*invoicedomain.InvoiceItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortOrder != ordered[j].SortOrder {
			return ordered[i].SortOrder < ordered[j].SortOrder
		}
		return ordered[i].ID < ordered[j].ID
	})

	var qualifying int64
	for _, item := range ordered {
		gross, err := money.LineAmount(item.Quantity, item.UnitAmount)
		if err != nil {
			return Totals{}, invoicedomain.ErrAmountOverflow
		}
		qualifying += gross
	}

	var budget *int64
	if opt.DocumentDiscountID != nil {
		if d := lk.Discounts[*opt.DocumentDiscountID]; d != nil && d.Type == discountdomain.TypeFixed {
			remaining := d.Value
			budget = &remaining
		}
	}

	totals := Totals{Redemptions: map[snowflake.ID]int64{}}
	for _, item := range ordered {
		line := LineContext{Qualifying: qualifying}
		if item.TaxRateID != nil {
			line.Rate = lk.Rates[*item.TaxRateID]
		}

		discountID := item.DiscountID
		documentLevel := false
		if discountID == nil && opt.DocumentDiscountID != nil {
			discountID = opt.DocumentDiscountID
			documentLevel = true
		}
		if discountID != nil {
			line.Discount = lk.Discounts[*discountID]
			line.CustomerRedemptions = lk.CustomerRedemptions[*discountID]
			if documentLevel {
				line.Budget = budget
			}
		}

		if err := ComputeItem(item, line, opt); err != nil {
			return Totals{}, err
		}
		if documentLevel && budget != nil {
			*budget -= item.DiscountAmount
		}
		if discountID != nil && item.DiscountAmount > 0 {
			totals.Redemptions[*discountID] += item.DiscountAmount
		}

		totals.Subtotal += item.Amount
		totals.DiscountTotal += item.DiscountAmount
		totals.TaxTotal += item.TaxAmount
		totals.Total += item.TotalAmount
	}
	return totals, nil
}

// ApplyTotals writes totals onto inv and re-derives amount_due.
func ApplyTotals(inv *invoicedomain.Invoice, totals Totals) {
	inv.Subtotal = totals.Subtotal
	inv.DiscountTotal = totals.DiscountTotal
	inv.TaxTotal = totals.TaxTotal
	inv.Total = totals.Total
	inv.AmountDue = inv.Balance()
}
