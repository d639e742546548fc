package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/config"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	sequenceservice "github.com/smallbiznis/ledgerbook/internal/sequence/service"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func taxedItem(env *testutil.Env, t *testing.T, inclusive bool) invoicedomain.ItemInput {
	rate := env.TaxRate(t, "VAT", 2000, inclusive)
	item := testutil.Item("Consulting", "2", 10000)
	item.TaxRateID = rate.ID.String()
	return item
}

func TestExclusiveTaxTotals(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")

	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []invoicedomain.ItemInput{taxedItem(env, t, false)},
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, draft.Status)
	assert.Equal(t, int64(20000), draft.Subtotal)
	assert.Equal(t, int64(4000), draft.TaxTotal)
	assert.Equal(t, int64(24000), draft.Total)
	assert.Equal(t, int64(24000), draft.AmountDue)
	assert.Nil(t, draft.Number)
}

func TestInclusiveTaxTotals(t *testing.T) {
	cfg := config.DefaultLedgerConfig()
	cfg.Tax.InclusiveMethod = config.InclusiveTaxGross
	env := testutil.New(t, testutil.WithLedgerConfig(cfg))
	customer := env.Customer(t, "USD")

	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID:  customer.ID.String(),
		TaxBehavior: taxdomain.TaxBehaviorInclusive,
		Items:       []invoicedomain.ItemInput{taxedItem(env, t, true)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), draft.TaxTotal)
	assert.Equal(t, int64(20000), draft.Total)
}

func TestCreateDefaults(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "EUR")

	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "EUR", draft.Currency)
	assert.Equal(t, taxdomain.TaxBehaviorExclusive, draft.TaxBehavior)
	assert.Equal(t, 30, draft.NetTermsDays)
	assert.Empty(t, draft.Items)

	negative := -1
	_, err = env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String(), NetTermsDays: &negative})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidNetTerms)

	_, err = env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String(), TaxBehavior: "sometimes"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTaxBehavior)

	bad := testutil.Item("Refund", "1", -5)
	_, err = env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String(), Items: []invoicedomain.ItemInput{bad}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidUnitAmount)
}

func TestItemEditsRecomputeTotals(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)

	detail, err := env.Invoices.AddItem(env.Ctx(), draft.ID.String(), testutil.Item("Hours", "1.5", 8000))
	require.NoError(t, err)
	assert.Equal(t, int64(12000), detail.Total)

	detail, err = env.Invoices.AddItem(env.Ctx(), draft.ID.String(), testutil.Item("Travel", "1", 3000))
	require.NoError(t, err)
	assert.Equal(t, int64(15000), detail.Total)
	require.Len(t, detail.Items, 2)

	qty := decimal.NewFromInt(2)
	detail, err = env.Invoices.UpdateItem(env.Ctx(), draft.ID.String(), detail.Items[0].ID.String(), invoicedomain.UpdateItemRequest{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, int64(19000), detail.Total)

	detail, err = env.Invoices.RemoveItem(env.Ctx(), draft.ID.String(), detail.Items[1].ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(16000), detail.Total)
	assert.Equal(t, detail.Total, detail.AmountDue)
}

func TestIssueNumbersAndFreezes(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")

	issued := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", 5000))
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, issued.Status)
	require.NotNil(t, issued.Number)
	require.NotNil(t, issued.IssuedAt)
	require.NotNil(t, issued.DueAt)
	assert.True(t, issued.IssuedAt.AddDate(0, 0, 30).Equal(*issued.DueAt))
	require.NoError(t, sequenceservice.VerifyNumber(sequencedomain.Scope{
		OrgID:        env.OrgID,
		DocumentType: sequencedomain.DocumentTypeInvoice,
	}, *issued.Number))

	_, err := env.Invoices.AddItem(env.Ctx(), issued.ID.String(), testutil.Item("Late", "1", 100))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)

	again, err := env.Invoices.Issue(env.Ctx(), issued.ID.String())
	require.NoError(t, err)
	assert.Equal(t, *issued.Number, *again.Number)
	assert.Equal(t, issued.Total, again.Total)

	byNumber, err := env.Invoices.GetByNumber(env.Ctx(), *issued.Number)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, byNumber.ID)
}

func TestIssueRequiresItems(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)

	_, err = env.Invoices.Issue(env.Ctx(), draft.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNoItems)

	// Nothing was consumed from the sequence.
	last, err := env.Sequences.Peek(env.Ctx(), sequencedomain.Scope{
		OrgID:        env.OrgID,
		DocumentType: sequencedomain.DocumentTypeInvoice,
		Year:         env.Clock.Now().Year(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestVoidedDraftCannotBeIssued(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []invoicedomain.ItemInput{testutil.Item("Setup", "1", 4000)},
	})
	require.NoError(t, err)

	_, err = env.Invoices.Void(env.Ctx(), draft.ID.String(), "duplicate")
	require.NoError(t, err)

	_, err = env.Invoices.Issue(env.Ctx(), draft.ID.String())
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
	assert.ErrorIs(t, err, apperr.ErrPreconditionFailed)

	got := env.Reload(t, draft.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusVoid, got.Status)
	assert.Nil(t, got.Number)
}

func TestZeroTotalInvoiceIsPaidAtIssue(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	issued := env.IssuedInvoice(t, customer.ID, testutil.Item("Courtesy", "1", 0))
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, issued.Status)
	assert.NotNil(t, issued.PaidAt)
}

func TestSequentialNumbering(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")

	var seqs []int64
	for i := 0; i < 3; i++ {
		issued := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 100))
		require.NotNil(t, issued.SequenceNo)
		seqs = append(seqs, *issued.SequenceNo)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

func TestConcurrentIssueIsGapless(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")

	const n = 6
	ids := make([]string, n)
	for i := range ids {
		draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
			CustomerID: customer.ID.String(),
			Items:      []invoicedomain.ItemInput{testutil.Item(fmt.Sprintf("Line %d", i), "1", 100)},
		})
		require.NoError(t, err)
		ids[i] = draft.ID.String()
	}

	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			issued, err := env.Invoices.Issue(env.Ctx(), id)
			if err == nil && issued.SequenceNo != nil {
				numbers <- *issued.SequenceNo
			}
		}(id)
	}
	wg.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for v := range numbers {
		seen[v] = true
	}
	require.Len(t, seen, n)
	for v := int64(1); v <= n; v++ {
		assert.True(t, seen[v], "missing number %d", v)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")

	voided := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	inv, err := env.Invoices.Void(env.Ctx(), voided.ID.String(), "duplicate")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusVoid, inv.Status)
	assert.NotNil(t, inv.VoidedAt)
	assert.Equal(t, int64(1000), inv.AmountDue)

	// Repeating a transition is a no-op.
	_, err = env.Invoices.Void(env.Ctx(), voided.ID.String(), "")
	require.NoError(t, err)

	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: voided.ID.String(),
		Amount:    1000,
		Currency:  "USD",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotOpen)

	paid := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: paid.ID.String(),
		Amount:    1000,
		Currency:  "USD",
	})
	require.NoError(t, err)
	_, err = env.Invoices.Void(env.Ctx(), paid.ID.String(), "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	archived, err := env.Invoices.Archive(env.Ctx(), paid.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusArchived, archived.Status)

	bad := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	off, err := env.Invoices.WriteOff(env.Ctx(), bad.ID.String(), "uncollectible")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusWrittenOff, off.Status)
	assert.Equal(t, int64(1000), off.AmountDue)
}

func TestDeleteDraftOnly(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)
	require.NoError(t, env.Invoices.DeleteDraft(env.Ctx(), draft.ID.String()))
	_, err = env.Invoices.Get(env.Ctx(), draft.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	issued := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	err = env.Invoices.DeleteDraft(env.Ctx(), issued.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDeletable)
}

func TestMarkPastDue(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	overdue := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	settled := env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	_, err := env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: settled.ID.String(),
		Amount:    1000,
		Currency:  "USD",
	})
	require.NoError(t, err)

	moved, err := env.Invoices.MarkPastDue(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	env.Clock.Advance(31 * 24 * time.Hour)
	moved, err = env.Invoices.MarkPastDue(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, invoicedomain.InvoiceStatusPastDue, env.Reload(t, overdue.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, env.Reload(t, settled.ID).Status)

	// A past due invoice still accepts payment.
	_, err = env.Payments.RecordPayment(env.Ctx(), paymentdomain.RecordPaymentRequest{
		InvoiceID: overdue.ID.String(),
		Amount:    1000,
		Currency:  "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, env.Reload(t, overdue.ID).Status)
}

func TestListFiltersByStatus(t *testing.T) {
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	env.IssuedInvoice(t, customer.ID, testutil.Item("Line", "1", 1000))
	_, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)

	status := invoicedomain.InvoiceStatusDraft
	resp, err := env.Invoices.List(env.Ctx(), invoicedomain.ListInvoiceRequest{Status: &status})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, resp.Invoices[0].Status)
}

type failingAudit struct{}

func (failingAudit) AuditLog(context.Context, *snowflake.ID, string, *string, string, string, *string, map[string]any) error {
	return errors.New("audit store unavailable")
}

func (failingAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	env := testutil.New(t, testutil.WithFx(
		fx.Decorate(func(*zap.Logger) *zap.Logger { return zap.New(core) }),
		fx.Decorate(func(auditdomain.Service) auditdomain.Service { return failingAudit{} }),
	))
	customer := env.Customer(t, "USD")

	issued := env.IssuedInvoice(t, customer.ID, testutil.Item("Support", "1", 2500))
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, issued.Status)

	warnings := logs.FilterMessage("failed to write audit log").All()
	require.NotEmpty(t, warnings)
	assert.Equal(t, "invoice.issued", warnings[0].ContextMap()["action"])
}
