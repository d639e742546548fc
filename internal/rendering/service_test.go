package rendering_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/rendering"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memoryStorage) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("bucket unavailable")
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = append([]byte(nil), body...)
	return "mem://" + key, nil
}

func (m *memoryStorage) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return body, ok
}

func (m *memoryStorage) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func newEnv(t *testing.T, store *memoryStorage) (*testutil.Env, *rendering.Service) {
	t.Helper()
	var svc *rendering.Service
	env := testutil.New(t, testutil.WithFx(
		fx.Provide(func() rendering.Storage { return store }),
		fx.Provide(rendering.NewService),
		fx.Provide(
			func(s *rendering.Service) invoicedomain.DocumentRenderer { return s },
			func(s *rendering.Service) creditnotedomain.DocumentRenderer { return s },
		),
		fx.Populate(&svc),
	))
	return env, svc
}

func TestIssuedInvoiceIsRendered(t *testing.T) {
	store := &memoryStorage{}
	env, svc := newEnv(t, store)

	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID,
		testutil.Item("Consulting", "2", 12500),
		testutil.Item("Hosting", "1", 4999),
	)
	svc.Wait()

	key := env.OrgID.String() + "/invoices/" + slug.Make(*inv.Number) + ".pdf"
	body, ok := store.get(key)
	require.True(t, ok, "expected %s to be stored", key)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))

	reloaded := env.Reload(t, inv.ID)
	require.NotNil(t, reloaded.PDFPath)
	assert.Equal(t, "mem://"+key, *reloaded.PDFPath)

	// Already rendered: the stored path comes back without a new upload.
	path, err := svc.RenderInvoice(env.Ctx(), env.OrgID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, *reloaded.PDFPath, path)
}

func TestDraftInvoiceIsNotRendered(t *testing.T) {
	store := &memoryStorage{}
	env, svc := newEnv(t, store)

	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []invoicedomain.ItemInput{testutil.Item("Setup", "1", 1000)},
	})
	require.NoError(t, err)

	_, err = svc.RenderInvoice(env.Ctx(), env.OrgID, draft.ID)
	assert.ErrorIs(t, err, rendering.ErrDraftDocument)
	assert.Empty(t, store.objects)
}

func TestRenderPendingRetriesFailedRenders(t *testing.T) {
	store := &memoryStorage{fail: true}
	env, svc := newEnv(t, store)

	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Licence", "1", 30000))
	svc.Wait()
	assert.Nil(t, env.Reload(t, inv.ID).PDFPath)

	n, err := svc.RenderPending(env.Ctx(), 10)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	store.setFail(false)
	n, err = svc.RenderPending(env.Ctx(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, env.Reload(t, inv.ID).PDFPath)

	n, err = svc.RenderPending(env.Ctx(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIssuedCreditNoteIsRendered(t *testing.T) {
	store := &memoryStorage{}
	env, svc := newEnv(t, store)

	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Retainer", "1", 10000))
	draft, err := env.CreditNotes.Create(env.Ctx(), creditnotedomain.CreateRequest{
		InvoiceID: inv.ID.String(),
		Reason:    "outage",
		Items: []creditnotedomain.ItemInput{{
			Description: "Service credit",
			Quantity:    decimal.NewFromInt(1),
			UnitAmount:  2500,
		}},
	})
	require.NoError(t, err)
	note, err := env.CreditNotes.Issue(env.Ctx(), draft.ID.String())
	require.NoError(t, err)
	svc.Wait()

	key := env.OrgID.String() + "/credit-notes/" + slug.Make(*note.Number) + ".pdf"
	body, ok := store.get(key)
	require.True(t, ok, "expected %s to be stored", key)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))

	after, err := env.CreditNotes.Get(env.Ctx(), note.ID.String())
	require.NoError(t, err)
	require.NotNil(t, after.PDFPath)
}
