package service

import (
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	taxservice "github.com/smallbiznis/ledgerbook/internal/tax/service"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

type Totals struct {
	Subtotal int64
	TaxTotal int64
	Total    int64
}

// Recompute fills the computed amounts of every line and returns the note
// totals. Lines follow the invoice rules without a discount step.
func Recompute(items []*creditnotedomain.CreditNoteItem, rates map[snowflake.ID]*taxdomain.TaxRate, behavior taxdomain.TaxBehavior, at time.Time, inclusiveMethod string) (Totals, error) {
	ordered := make([]*creditnotedomain.CreditNoteItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortOrder != ordered[j].SortOrder {
			return ordered[i].SortOrder < ordered[j].SortOrder
		}
		return ordered[i].ID < ordered[j].ID
	})

	var totals Totals
	for _, item := range ordered {
		gross, err := money.LineAmount(item.Quantity, item.UnitAmount)
		if err != nil {
			if errors.Is(err, money.ErrInvalidQuantity) {
				return Totals{}, creditnotedomain.ErrInvalidQuantity
			}
			return Totals{}, creditnotedomain.ErrAmountOverflow
		}

		var rate *taxdomain.TaxRate
		if item.TaxRateID != nil {
			rate = rates[*item.TaxRateID]
		}
		tax := taxservice.Calculate(gross, rate, behavior, at, inclusiveMethod)

		item.Amount = tax.Net
		item.TaxAmount = tax.TaxAmount
		item.TotalAmount = tax.LineTotal

		totals.Subtotal += item.Amount
		totals.TaxTotal += item.TaxAmount
		totals.Total += item.TotalAmount
	}
	return totals, nil
}
