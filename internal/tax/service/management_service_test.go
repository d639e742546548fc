package service_test

import (
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTaxRate(t *testing.T) {
	env := testutil.New(t)

	rate, err := env.Taxes.Create(env.Ctx(), taxdomain.CreateRequest{
		Code:                  " vat20 ",
		Name:                  "VAT",
		PercentageBasisPoints: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "VAT20", rate.Code)
	assert.True(t, rate.Active)

	_, err = env.Taxes.Create(env.Ctx(), taxdomain.CreateRequest{Code: "VAT20", Name: "VAT", PercentageBasisPoints: 1000})
	assert.ErrorIs(t, err, taxdomain.ErrDuplicateCode)

	_, err = env.Taxes.Create(env.Ctx(), taxdomain.CreateRequest{Code: "HUGE", Name: "Huge", PercentageBasisPoints: 100001})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidRate)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = env.Taxes.Create(env.Ctx(), taxdomain.CreateRequest{
		Code:                  "WINDOW",
		Name:                  "Window",
		PercentageBasisPoints: 500,
		ValidFrom:             &from,
		ValidTo:               &from,
	})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidWindow)
}

func TestRateChangesDoNotReachIssuedInvoices(t *testing.T) {
	env := testutil.New(t)
	rate := env.TaxRate(t, "VAT", 2000, false)
	customer := env.Customer(t, "USD")

	item := testutil.Item("Widget", "1", 10000)
	item.TaxRateID = rate.ID.String()
	issued := env.IssuedInvoice(t, customer.ID, item)
	require.Equal(t, int64(2000), issued.TaxTotal)

	bp := int64(2500)
	_, err := env.Taxes.Update(env.Ctx(), taxdomain.UpdateRequest{ID: rate.ID.String(), PercentageBasisPoints: &bp})
	require.NoError(t, err)

	got := env.Reload(t, issued.ID)
	assert.Equal(t, int64(2000), got.TaxTotal)
	assert.Equal(t, int64(12000), got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2000), got.Items[0].TaxAmount)
}

func TestDeactivatedRateStopsTaxingDrafts(t *testing.T) {
	env := testutil.New(t)
	rate := env.TaxRate(t, "GST", 1000, false)
	customer := env.Customer(t, "USD")

	item := testutil.Item("Widget", "1", 10000)
	item.TaxRateID = rate.ID.String()
	_, err := env.Invoices.Create(env.Ctx(), invoiceRequest(customer.ID.String(), item))
	require.NoError(t, err)

	off, err := env.Taxes.Deactivate(env.Ctx(), rate.ID.String())
	require.NoError(t, err)
	assert.False(t, off.Active)

	draft, err := env.Invoices.Create(env.Ctx(), invoiceRequest(customer.ID.String(), item))
	require.NoError(t, err)
	assert.Equal(t, int64(0), draft.TaxTotal)
	assert.Equal(t, int64(10000), draft.Total)
}

func TestListTaxRates(t *testing.T) {
	env := testutil.New(t)
	env.TaxRate(t, "A", 500, false)
	b := env.TaxRate(t, "B", 700, true)
	_, err := env.Taxes.Deactivate(env.Ctx(), b.ID.String())
	require.NoError(t, err)

	active := true
	rates, err := env.Taxes.List(env.Ctx(), taxdomain.ListRequest{Active: &active})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "A", rates[0].Code)

	_, err = env.Taxes.Get(env.Ctx(), "123")
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}

func invoiceRequest(customerID string, items ...invoicedomain.ItemInput) invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{CustomerID: customerID, Items: items}
}
