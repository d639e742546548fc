// Package testutil wires the ledger services against an in-memory sqlite
// database for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbook/internal/audit"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/creditnote"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	"github.com/smallbiznis/ledgerbook/internal/customer"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	"github.com/smallbiznis/ledgerbook/internal/discount"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/smallbiznis/ledgerbook/internal/invoice"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/migration"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	"github.com/smallbiznis/ledgerbook/internal/payment"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	paymentservice "github.com/smallbiznis/ledgerbook/internal/payment/service"
	"github.com/smallbiznis/ledgerbook/internal/recurring"
	recurringservice "github.com/smallbiznis/ledgerbook/internal/recurring/service"
	"github.com/smallbiznis/ledgerbook/internal/sequence"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"github.com/smallbiznis/ledgerbook/internal/tax"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StripeSecret is the webhook secret configured for the stripe adapter.
const StripeSecret = "whsec_test"

// Env holds the services of one test database.
type Env struct {
	DB    *gorm.DB
	Clock *clock.FakeClock
	OrgID snowflake.ID

	Customers   customerdomain.Service
	Taxes       taxdomain.Service
	Discounts   discountdomain.Service
	Sequences   sequencedomain.Service
	Invoices    invoicedomain.Service
	Ledger      invoicedomain.Ledger
	Payments    *paymentservice.Service
	Webhooks    paymentdomain.WebhookService
	CreditNotes creditnotedomain.Service
	Recurring   *recurringservice.Service
	Audit       auditdomain.Service
}

type Option func(*options)

type options struct {
	ledger config.LedgerConfig
	now    time.Time
	extra  []fx.Option
}

// WithLedgerConfig overrides the ledger policy.
func WithLedgerConfig(cfg config.LedgerConfig) Option {
	return func(o *options) { o.ledger = cfg }
}

// WithNow sets the fake clock start.
func WithNow(now time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFx adds fx options, e.g. a Notifier or DocumentRenderer.
func WithFx(opts ...fx.Option) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// OpenDB opens a private in-memory database with the full schema.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// New starts the ledger modules over a fresh database.
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()
	o := options{
		ledger: config.DefaultLedgerConfig(),
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&o)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	env := &Env{
		DB:    OpenDB(t),
		Clock: clock.NewFakeClock(o.now),
		OrgID: node.Generate(),
	}

	cfg := config.Config{
		Payments: config.PaymentConfig{WebhookSecrets: map[string]string{"stripe": StripeSecret}},
	}
	fxOpts := []fx.Option{
		fx.NopLogger,
		fx.Supply(env.DB, zap.NewNop(), node, cfg, config.NewStaticLedgerConfigHolder(o.ledger)),
		fx.Provide(func() clock.Clock { return env.Clock }),
		audit.Module,
		customer.Module,
		sequence.Module,
		tax.Module,
		discount.Module,
		invoice.Module,
		payment.Module,
		creditnote.Module,
		recurring.Module,
		fx.Populate(
			&env.Customers,
			&env.Taxes,
			&env.Discounts,
			&env.Sequences,
			&env.Invoices,
			&env.Ledger,
			&env.Payments,
			&env.Webhooks,
			&env.CreditNotes,
			&env.Recurring,
			&env.Audit,
		),
	}
	fxOpts = append(fxOpts, o.extra...)

	app := fxtest.New(t, fxOpts...)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return env
}

// Ctx scopes a context to the env's org.
func (e *Env) Ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(e.OrgID))
}

// Customer creates a customer billed in currency.
func (e *Env) Customer(t testing.TB, currency string) customerdomain.Customer {
	t.Helper()
	c, err := e.Customers.Create(e.Ctx(), customerdomain.CreateCustomerRequest{
		Name:     "Acme Ltd",
		Email:    "billing@acme.test",
		Currency: currency,
	})
	require.NoError(t, err)
	return c
}

// TaxRate creates an active rate of bp basis points.
func (e *Env) TaxRate(t testing.TB, code string, bp int64, inclusive bool) *taxdomain.TaxRate {
	t.Helper()
	rate, err := e.Taxes.Create(e.Ctx(), taxdomain.CreateRequest{
		Code:                  code,
		Name:                  code,
		PercentageBasisPoints: bp,
		Inclusive:             inclusive,
	})
	require.NoError(t, err)
	return rate
}

// Item builds an invoice line.
func Item(description string, quantity string, unitAmount int64) invoicedomain.ItemInput {
	return invoicedomain.ItemInput{
		Description: description,
		Quantity:    decimal.RequireFromString(quantity),
		UnitAmount:  unitAmount,
	}
}

// IssuedInvoice creates and issues an invoice with the given lines.
func (e *Env) IssuedInvoice(t testing.TB, customerID snowflake.ID, items ...invoicedomain.ItemInput) *invoicedomain.InvoiceDetail {
	t.Helper()
	draft, err := e.Invoices.Create(e.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customerID.String(),
		Items:      items,
	})
	require.NoError(t, err)
	issued, err := e.Invoices.Issue(e.Ctx(), draft.ID.String())
	require.NoError(t, err)
	return issued
}

// Reload fetches the current invoice state.
func (e *Env) Reload(t testing.TB, id snowflake.ID) *invoicedomain.InvoiceDetail {
	t.Helper()
	detail, err := e.Invoices.Get(e.Ctx(), id.String())
	require.NoError(t, err)
	return detail
}
