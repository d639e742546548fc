package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/notification"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(ctx context.Context, msg notification.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingProvider) messages() []notification.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Message(nil), p.sent...)
}

func newEnv(t *testing.T, provider notification.Provider) (*testutil.Env, *notification.Dispatcher) {
	t.Helper()
	var dispatcher *notification.Dispatcher
	env := testutil.New(t, testutil.WithFx(
		fx.Provide(func() notification.Provider { return provider }),
		fx.Provide(notification.NewDispatcher),
		fx.Provide(func(d *notification.Dispatcher) invoicedomain.Notifier { return d }),
		fx.Populate(&dispatcher),
	))
	return env, dispatcher
}

func reminders(t *testing.T, env *testutil.Env, invoiceID any) []invoicedomain.InvoiceReminder {
	t.Helper()
	var rows []invoicedomain.InvoiceReminder
	require.NoError(t, env.DB.Where("invoice_id = ?", invoiceID).Order("created_at asc").Find(&rows).Error)
	return rows
}

func TestIssuedInvoiceIsEmailed(t *testing.T) {
	provider := &recordingProvider{}
	env, dispatcher := newEnv(t, provider)
	customer := env.Customer(t, "USD")

	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "2", 12500))
	dispatcher.Wait()

	sent := provider.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"billing@acme.test"}, sent[0].To)
	assert.Contains(t, sent[0].Subject, *inv.Number)
	assert.Contains(t, sent[0].Subject, "250.00 USD")
	assert.Contains(t, sent[0].HTMLBody, "Acme Ltd")

	rows := reminders(t, env, inv.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, invoicedomain.ReminderKindIssued, rows[0].Kind)
	assert.True(t, rows[0].EmailSent)
	assert.NotNil(t, rows[0].SentAt)
	assert.Nil(t, rows[0].EmailError)
}

func TestDeliveryFailureIsRecordedNotRaised(t *testing.T) {
	provider := &recordingProvider{err: errors.New("mailbox unavailable")}
	env, dispatcher := newEnv(t, provider)
	customer := env.Customer(t, "USD")

	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", 10000))
	dispatcher.Wait()

	rows := reminders(t, env, inv.ID)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].EmailSent)
	require.NotNil(t, rows[0].EmailError)
	assert.Equal(t, "mailbox unavailable", *rows[0].EmailError)

	// the ledger is untouched by the failed delivery
	reloaded := env.Reload(t, inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, reloaded.Status)
	assert.Equal(t, int64(10000), reloaded.AmountDue)
}

func TestPastDueReminder(t *testing.T) {
	provider := &recordingProvider{}
	env, dispatcher := newEnv(t, provider)
	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", 10000))
	dispatcher.Wait()

	env.Clock.Advance(45 * 24 * time.Hour)
	moved, err := env.Invoices.MarkPastDue(context.Background(), env.Clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	dispatcher.Wait()

	sent := provider.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Subject, "past due")

	rows := reminders(t, env, inv.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, invoicedomain.ReminderKindPastDue, rows[1].Kind)
}
