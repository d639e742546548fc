package service_test

import (
	"testing"

	"github.com/smallbiznis/ledgerbook/internal/config"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limit(n int64) *int64 { return &n }

func TestCreateDiscountValidation(t *testing.T) {
	env := testutil.New(t)

	cases := []struct {
		name string
		req  discountdomain.CreateRequest
		err  error
	}{
		{"missing code", discountdomain.CreateRequest{Type: discountdomain.TypePercent, Value: 100}, discountdomain.ErrInvalidCode},
		{"unknown type", discountdomain.CreateRequest{Code: "X", Type: "bogo", Value: 100}, discountdomain.ErrInvalidType},
		{"percent over 100%", discountdomain.CreateRequest{Code: "X", Type: discountdomain.TypePercent, Value: 10001}, discountdomain.ErrInvalidValue},
		{"fixed without currency", discountdomain.CreateRequest{Code: "X", Type: discountdomain.TypeFixed, Value: 500}, discountdomain.ErrInvalidCurrency},
		{"zero limit", discountdomain.CreateRequest{Code: "X", Type: discountdomain.TypePercent, Value: 100, MaxRedemptions: limit(0)}, discountdomain.ErrInvalidLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Discounts.Create(env.Ctx(), tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDiscountCodesAreUniquePerOrg(t *testing.T) {
	env := testutil.New(t)
	created, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:  " spring10 ",
		Type:  discountdomain.TypePercent,
		Value: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPRING10", created.Code)

	_, err = env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:  "SPRING10",
		Type:  discountdomain.TypePercent,
		Value: 500,
	})
	assert.ErrorIs(t, err, discountdomain.ErrDuplicateCode)

	found, err := env.Discounts.GetByCode(env.Ctx(), "spring10")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestValidateReportsReason(t *testing.T) {
	env := testutil.New(t)
	_, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:          "BIG",
		Type:          discountdomain.TypeFixed,
		Value:         2500,
		Currency:      "USD",
		MinimumAmount: 10000,
	})
	require.NoError(t, err)

	eval, err := env.Discounts.Validate(env.Ctx(), discountdomain.ValidateRequest{Code: "big", Currency: "USD", Amount: 12000})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), eval.Amount)

	_, err = env.Discounts.Validate(env.Ctx(), discountdomain.ValidateRequest{Code: "big", Currency: "USD", Amount: 9000})
	assert.ErrorIs(t, err, discountdomain.ErrNotApplicable)

	_, err = env.Discounts.Validate(env.Ctx(), discountdomain.ValidateRequest{Code: "nope", Currency: "USD", Amount: 9000})
	assert.ErrorIs(t, err, discountdomain.ErrNotFound)
}

func TestDeactivatedDiscountIsRejected(t *testing.T) {
	env := testutil.New(t)
	d, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{Code: "OFF", Type: discountdomain.TypePercent, Value: 100})
	require.NoError(t, err)

	off, err := env.Discounts.Deactivate(env.Ctx(), d.ID.String())
	require.NoError(t, err)
	assert.False(t, off.Active)

	_, err = env.Discounts.Validate(env.Ctx(), discountdomain.ValidateRequest{Code: "OFF", Amount: 1000})
	assert.ErrorIs(t, err, discountdomain.ErrNotApplicable)
}

func draftWithCode(env *testutil.Env, customerID, code string) (*invoicedomain.InvoiceDetail, error) {
	return env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID:   customerID,
		DiscountCode: code,
		Items:        []invoicedomain.ItemInput{testutil.Item("Seat", "2", 5000)},
	})
}

func TestPerCustomerLimitIgnoresVoidedInvoicesByDefault(t *testing.T) {
	env := testutil.New(t)
	_, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:                      "WELCOME",
		Type:                      discountdomain.TypePercent,
		Value:                     2000,
		MaxRedemptionsPerCustomer: limit(1),
	})
	require.NoError(t, err)
	customer := env.Customer(t, "USD")

	first, err := draftWithCode(env, customer.ID.String(), "WELCOME")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), first.DiscountTotal)
	assert.Equal(t, int64(8000), first.Total)
	_, err = env.Invoices.Issue(env.Ctx(), first.ID.String())
	require.NoError(t, err)

	_, err = draftWithCode(env, customer.ID.String(), "WELCOME")
	assert.ErrorIs(t, err, discountdomain.ErrNotApplicable)

	_, err = env.Invoices.Void(env.Ctx(), first.ID.String(), "issued in error")
	require.NoError(t, err)

	second, err := draftWithCode(env, customer.ID.String(), "WELCOME")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), second.DiscountTotal)
}

func TestPerCustomerLimitCanCountVoidedInvoices(t *testing.T) {
	cfg := config.DefaultLedgerConfig()
	cfg.Discounts.CountVoidedRedemptions = true
	env := testutil.New(t, testutil.WithLedgerConfig(cfg))

	_, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:                      "WELCOME",
		Type:                      discountdomain.TypePercent,
		Value:                     2000,
		MaxRedemptionsPerCustomer: limit(1),
	})
	require.NoError(t, err)
	customer := env.Customer(t, "USD")

	first, err := draftWithCode(env, customer.ID.String(), "WELCOME")
	require.NoError(t, err)
	_, err = env.Invoices.Issue(env.Ctx(), first.ID.String())
	require.NoError(t, err)
	_, err = env.Invoices.Void(env.Ctx(), first.ID.String(), "")
	require.NoError(t, err)

	_, err = draftWithCode(env, customer.ID.String(), "WELCOME")
	assert.ErrorIs(t, err, discountdomain.ErrNotApplicable)
}

func TestGlobalLimitCountsIssuedInvoices(t *testing.T) {
	env := testutil.New(t)
	d, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:           "ONCE",
		Type:           discountdomain.TypeFixed,
		Value:          1000,
		Currency:       "USD",
		MaxRedemptions: limit(1),
	})
	require.NoError(t, err)

	a := env.Customer(t, "USD")
	b := env.Customer(t, "USD")
	draftA, err := draftWithCode(env, a.ID.String(), "ONCE")
	require.NoError(t, err)
	draftB, err := draftWithCode(env, b.ID.String(), "ONCE")
	require.NoError(t, err)

	_, err = env.Invoices.Issue(env.Ctx(), draftA.ID.String())
	require.NoError(t, err)
	// The second issue finds the limit exhausted and loses the discount.
	issuedB, err := env.Invoices.Issue(env.Ctx(), draftB.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), issuedB.DiscountTotal)
	assert.Equal(t, int64(10000), issuedB.Total)

	got, err := env.Discounts.Get(env.Ctx(), d.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentRedemptions)
}

func TestReverseRedemptionReleasesLimits(t *testing.T) {
	env := testutil.New(t)
	d, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:                      "WELCOME",
		Type:                      discountdomain.TypePercent,
		Value:                     2000,
		MaxRedemptions:            limit(1),
		MaxRedemptionsPerCustomer: limit(1),
	})
	require.NoError(t, err)
	customer := env.Customer(t, "USD")

	first, err := draftWithCode(env, customer.ID.String(), "WELCOME")
	require.NoError(t, err)
	_, err = env.Invoices.Issue(env.Ctx(), first.ID.String())
	require.NoError(t, err)

	got, err := env.Discounts.Get(env.Ctx(), d.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentRedemptions)

	_, err = draftWithCode(env, customer.ID.String(), "WELCOME")
	assert.ErrorIs(t, err, discountdomain.ErrNotApplicable)

	require.NoError(t, env.Discounts.ReverseRedemption(env.Ctx(), d.ID.String(), first.ID.String()))
	got, err = env.Discounts.Get(env.Ctx(), d.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CurrentRedemptions)

	// Reversing twice leaves the counter alone.
	require.NoError(t, env.Discounts.ReverseRedemption(env.Ctx(), d.ID.String(), first.ID.String()))
	got, err = env.Discounts.Get(env.Ctx(), d.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CurrentRedemptions)

	second, err := draftWithCode(env, customer.ID.String(), "WELCOME")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), second.DiscountTotal)
}

func TestReverseRedemptionRequiresRedemption(t *testing.T) {
	env := testutil.New(t)
	d, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{Code: "NONE", Type: discountdomain.TypePercent, Value: 100})
	require.NoError(t, err)
	customer := env.Customer(t, "USD")
	draft, err := draftWithCode(env, customer.ID.String(), "NONE")
	require.NoError(t, err)

	err = env.Discounts.ReverseRedemption(env.Ctx(), d.ID.String(), draft.ID.String())
	assert.ErrorIs(t, err, discountdomain.ErrRedemptionNotFound)

	err = env.Discounts.ReverseRedemption(env.Ctx(), "abc", draft.ID.String())
	assert.ErrorIs(t, err, discountdomain.ErrInvalidID)
}
