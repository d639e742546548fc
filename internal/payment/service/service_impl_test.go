package service_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issue(t *testing.T, env *testutil.Env, unitAmount int64) *invoicedomain.InvoiceDetail {
	t.Helper()
	customer := env.Customer(t, "USD")
	return env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", unitAmount))
}

func pay(t *testing.T, env *testutil.Env, invoiceID snowflake.ID, amount int64) *paymentdomain.Payment {
	t.Helper()
	payment, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: invoiceID.String(),
		Amount:    amount,
		Currency:  "USD",
	})
	require.NoError(t, err)
	return payment
}

func TestPartialThenFullPayment(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 100000)
	require.Equal(t, int64(100000), inv.Total)

	pay(t, env, inv.ID, 40000)
	got := env.Reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, got.Status)
	assert.Equal(t, int64(60000), got.AmountDue)
	assert.Equal(t, int64(40000), got.AmountPaid)

	pay(t, env, inv.ID, 60000)
	got = env.Reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, got.Status)
	assert.Equal(t, int64(0), got.AmountDue)
	assert.NotNil(t, got.PaidAt)

	payments, err := env.Payments.ListByInvoice(env.Ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestOverpaymentIsRejected(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)

	_, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    10001,
		Currency:  "USD",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	got := env.Reload(t, inv.ID)
	assert.Equal(t, int64(10000), got.AmountDue)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, got.Status)
	payments, err := env.Payments.ListByInvoice(env.Ctx(), inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPaymentValidation(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)

	_, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: 0, Currency: "USD"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: 100, Currency: "EUR"})
	assert.ErrorIs(t, err, paymentdomain.ErrCurrencyMismatch)

	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: 100, Currency: "US"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCurrency)
}

func TestPaymentOnDraftIsRejected(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []invoicedomain.ItemInput{testutil.Item("Consulting", "1", 5000)},
	})
	require.NoError(t, err)

	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: draft.ID.String(),
		Amount:    5000,
		Currency:  "USD",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotOpen)
}

func TestProviderReferenceIsIdempotent(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)
	req := paymentdomain.RecordPaymentRequest{
		InvoiceID:         inv.ID.String(),
		Amount:            4000,
		Currency:          "USD",
		Provider:          "stripe",
		ProviderPaymentID: "pi_123",
	}

	first, err := env.Payments.RecordPayment(env.Ctx(), req)
	require.NoError(t, err)
	second, err := env.Payments.RecordPayment(env.Ctx(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(6000), env.Reload(t, inv.ID).AmountDue)

	req.Amount = 5000
	_, err = env.Payments.RecordPayment(env.Ctx(), req)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderReferenceConflict)
	assert.True(t, apperr.KindOf(err) == apperr.KindConflict)
}

func TestPendingPaymentSettlesOnCompletion(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)

	pending, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    10000,
		Currency:  "USD",
		Status:    paymentdomain.PaymentStatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), env.Reload(t, inv.ID).AmountDue)

	done, err := env.Payments.CompletePayment(env.Ctx(), pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, done.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, env.Reload(t, inv.ID).Status)

	again, err := env.Payments.CompletePayment(env.Ctx(), pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, again.Status)
	assert.Equal(t, int64(10000), env.Reload(t, inv.ID).AmountPaid)

	_, err = env.Payments.FailPayment(env.Ctx(), pending.ID.String(), "card declined")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotPending)
}

func TestFailedPaymentLeavesInvoiceUntouched(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)

	failed, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID:     inv.ID.String(),
		Amount:        10000,
		Currency:      "USD",
		Status:        paymentdomain.PaymentStatusFailed,
		FailureReason: "insufficient funds",
	})
	require.NoError(t, err)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "insufficient funds", *failed.FailureReason)

	got := env.Reload(t, inv.ID)
	assert.Equal(t, int64(10000), got.AmountDue)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, got.Status)
}

func TestRefundReopensBalance(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 100000)
	payment := pay(t, env, inv.ID, 100000)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, env.Reload(t, inv.ID).Status)

	refund, err := env.Payments.RecordRefund(env.Ctx(), paymentdomain.RecordRefundRequest{
		PaymentID: payment.ID.String(),
		Amount:    30000,
		Reason:    "service credit",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.RefundStatusSucceeded, refund.Status)

	got := env.Reload(t, inv.ID)
	assert.Equal(t, int64(70000), got.AmountPaid)
	assert.Equal(t, int64(30000), got.AmountDue)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, got.Status)
	assert.Equal(t, got.Total-got.AmountPaid-got.CreditApplied, got.AmountDue)

	updated, err := env.Payments.Get(env.Ctx(), payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPartiallyRefunded, updated.Status)
	assert.Equal(t, int64(70000), updated.Refundable())

	_, err = env.Payments.RecordRefund(env.Ctx(), paymentdomain.RecordRefundRequest{
		PaymentID: payment.ID.String(),
		Amount:    70001,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrRefundExceedsAmount)

	_, err = env.Payments.RecordRefund(env.Ctx(), paymentdomain.RecordRefundRequest{
		PaymentID: payment.ID.String(),
		Amount:    70000,
	})
	require.NoError(t, err)
	updated, err = env.Payments.Get(env.Ctx(), payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRefunded, updated.Status)
	assert.Equal(t, int64(100000), env.Reload(t, inv.ID).AmountDue)

	refunds, err := env.Payments.ListRefunds(env.Ctx(), payment.ID.String())
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
}

func TestRefundOfPendingPaymentIsRejected(t *testing.T) {
	env := testutil.New(t)
	inv := issue(t, env, 10000)
	pending, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    10000,
		Currency:  "USD",
		Status:    paymentdomain.PaymentStatusPending,
	})
	require.NoError(t, err)

	_, err = env.Payments.RecordRefund(env.Ctx(), paymentdomain.RecordRefundRequest{
		PaymentID: pending.ID.String(),
		Amount:    100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotRefundable)
}
