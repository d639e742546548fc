package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbook/internal/config"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func line(id int64, qty string, unit int64) *invoicedomain.InvoiceItem {
	return &invoicedomain.InvoiceItem{
		ID:         snowflake.ID(id),
		Quantity:   decimal.RequireFromString(qty),
		UnitAmount: unit,
		SortOrder:  int(id),
	}
}

func withTax(item *invoicedomain.InvoiceItem, rateID snowflake.ID) *invoicedomain.InvoiceItem {
	item.TaxRateID = &rateID
	return item
}

func vatLookups(rateID snowflake.ID) Lookups {
	return Lookups{
		Rates:     map[snowflake.ID]*taxdomain.TaxRate{rateID: {ID: rateID, PercentageBasisPoints: 2000, Active: true}},
		Discounts: map[snowflake.ID]*discountdomain.Discount{},
	}
}

func TestRecomputeExclusiveTax(t *testing.T) {
	items := []*invoicedomain.InvoiceItem{withTax(line(1, "2", 10000), 9)}

	totals, err := Recompute(items, vatLookups(9), ComputeOptions{
		Behavior: taxdomain.TaxBehaviorExclusive,
		Currency: "USD",
		At:       at,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), totals.Subtotal)
	assert.Equal(t, int64(4000), totals.TaxTotal)
	assert.Equal(t, int64(24000), totals.Total)
	assert.Equal(t, int64(24000), items[0].TotalAmount)
}

func TestRecomputeInclusiveTaxGross(t *testing.T) {
	items := []*invoicedomain.InvoiceItem{withTax(line(1, "2", 10000), 9)}

	totals, err := Recompute(items, vatLookups(9), ComputeOptions{
		Behavior:        taxdomain.TaxBehaviorInclusive,
		Currency:        "USD",
		At:              at,
		InclusiveMethod: config.InclusiveTaxGross,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), totals.TaxTotal)
	assert.Equal(t, int64(20000), totals.Total)
	assert.Equal(t, int64(16000), totals.Subtotal)
}

func TestRecomputeInclusiveTaxExtract(t *testing.T) {
	items := []*invoicedomain.InvoiceItem{withTax(line(1, "1", 12000), 9)}

	totals, err := Recompute(items, vatLookups(9), ComputeOptions{
		Behavior:        taxdomain.TaxBehaviorInclusive,
		Currency:        "USD",
		At:              at,
		InclusiveMethod: config.InclusiveTaxExtract,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), totals.TaxTotal)
	assert.Equal(t, int64(12000), totals.Total)
}

func TestRecomputeDiscountReducesTaxableBase(t *testing.T) {
	discountID := snowflake.ID(77)
	lk := vatLookups(9)
	lk.Discounts[discountID] = &discountdomain.Discount{ID: discountID, Type: discountdomain.TypePercent, Value: 1000, Active: true}

	items := []*invoicedomain.InvoiceItem{withTax(line(1, "1", 10000), 9)}
	totals, err := Recompute(items, lk, ComputeOptions{
		Behavior:           taxdomain.TaxBehaviorExclusive,
		Currency:           "USD",
		At:                 at,
		DocumentDiscountID: &discountID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), totals.DiscountTotal)
	assert.Equal(t, int64(1800), totals.TaxTotal)
	assert.Equal(t, int64(10800), totals.Total)
	assert.Equal(t, int64(1000), totals.Redemptions[discountID])
}

func TestRecomputeFixedDocumentDiscountIsABudget(t *testing.T) {
	discountID := snowflake.ID(77)
	lk := Lookups{Discounts: map[snowflake.ID]*discountdomain.Discount{
		discountID: {ID: discountID, Type: discountdomain.TypeFixed, Value: 3000, Currency: "USD", Active: true},
	}}

	items := []*invoicedomain.InvoiceItem{line(2, "1", 2000), line(1, "1", 2000)}
	totals, err := Recompute(items, lk, ComputeOptions{
		Behavior:           taxdomain.TaxBehaviorExclusive,
		Currency:           "USD",
		At:                 at,
		DocumentDiscountID: &discountID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), totals.DiscountTotal)
	assert.Equal(t, int64(1000), totals.Total)
	// Sort order 1 is consumed first.
	assert.Equal(t, int64(2000), items[1].DiscountAmount)
	assert.Equal(t, int64(1000), items[0].DiscountAmount)
}

func TestRecomputeIsDeterministic(t *testing.T) {
	build := func() []*invoicedomain.InvoiceItem {
		return []*invoicedomain.InvoiceItem{
			withTax(line(1, "1.5", 3333), 9),
			withTax(line(2, "0.333", 10001), 9),
			line(3, "7", 1),
		}
	}
	opt := ComputeOptions{Behavior: taxdomain.TaxBehaviorExclusive, Currency: "USD", At: at}

	first, err := Recompute(build(), vatLookups(9), opt)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Recompute(build(), vatLookups(9), opt)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, first.Subtotal+first.TaxTotal-first.DiscountTotal, first.Total)
}

func TestRecomputeMissingRateMeansNoTax(t *testing.T) {
	items := []*invoicedomain.InvoiceItem{withTax(line(1, "1", 5000), 404)}
	totals, err := Recompute(items, Lookups{}, ComputeOptions{Behavior: taxdomain.TaxBehaviorExclusive, At: at})
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.TaxTotal)
	assert.Equal(t, int64(5000), totals.Total)
}

func TestRecomputeRejectsNegativeQuantity(t *testing.T) {
	items := []*invoicedomain.InvoiceItem{line(1, "-1", 5000)}
	_, err := Recompute(items, Lookups{}, ComputeOptions{At: at})
	assert.Error(t, err)
}

func TestDeriveOpenStatus(t *testing.T) {
	due := at.Add(-time.Hour)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, deriveOpenStatus(&invoicedomain.Invoice{AmountDue: 0}, at))
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, deriveOpenStatus(&invoicedomain.Invoice{AmountDue: 10, AmountPaid: 5}, at))
	assert.Equal(t, invoicedomain.InvoiceStatusPastDue, deriveOpenStatus(&invoicedomain.Invoice{AmountDue: 10, DueAt: &due}, at))
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, deriveOpenStatus(&invoicedomain.Invoice{AmountDue: 10}, at))
}
