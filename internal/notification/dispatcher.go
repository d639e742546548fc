package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultConcurrency = 8
	sendTimeout        = 30 * time.Second
)

var ErrNoRecipient = errors.New("customer has no email address")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Provider     Provider
	InvoiceRepo  invoicedomain.Repository
	CustomerRepo customerdomain.Repository
}

// Dispatcher implements invoicedomain.Notifier. Each event is handled on its
// own goroutine, bounded by a semaphore, so ledger calls never wait on email.
type Dispatcher struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	provider     Provider
	invoiceRepo  invoicedomain.Repository
	customerRepo customerdomain.Repository

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		db:           p.DB,
		log:          p.Log.Named("notification"),
		genID:        p.GenID,
		clock:        p.Clock,
		provider:     p.Provider,
		invoiceRepo:  p.InvoiceRepo,
		customerRepo: p.CustomerRepo,
		sem:          make(chan struct{}, defaultConcurrency),
	}
}

func (d *Dispatcher) InvoiceIssued(ctx context.Context, inv invoicedomain.Invoice) {
	d.dispatch(ctx, invoicedomain.ReminderKindIssued, inv)
}

func (d *Dispatcher) InvoicePastDue(ctx context.Context, inv invoicedomain.Invoice) {
	d.dispatch(ctx, invoicedomain.ReminderKindPastDue, inv)
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, kind invoicedomain.ReminderKind, inv invoicedomain.Invoice) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := d.deliver(ctx, kind, inv); err != nil {
			d.log.Warn("invoice notification failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}()
}

// deliver records the attempt first, then sends and writes the outcome back.
func (d *Dispatcher) deliver(ctx context.Context, kind invoicedomain.ReminderKind, inv invoicedomain.Invoice) error {
	customer, err := d.customerRepo.FindByID(ctx, d.db, inv.OrgID, inv.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return customerdomain.ErrNotFound
	}

	reminder := &invoicedomain.InvoiceReminder{
		ID:        d.genID.Generate(),
		OrgID:     inv.OrgID,
		InvoiceID: inv.ID,
		Kind:      kind,
		Recipient: strings.TrimSpace(customer.Email),
		CreatedAt: d.clock.Now().UTC(),
	}
	if err := d.invoiceRepo.InsertReminder(ctx, d.db, reminder); err != nil {
		return err
	}

	sendErr := d.send(ctx, kind, inv, customer, reminder.Recipient)
	var (
		sentAt *time.Time
		errMsg *string
	)
	if sendErr != nil {
		msg := sendErr.Error()
		errMsg = &msg
	} else {
		now := d.clock.Now().UTC()
		sentAt = &now
	}
	if err := d.invoiceRepo.UpdateReminderOutcome(ctx, d.db, reminder.ID, sentAt, errMsg); err != nil {
		return errors.Join(sendErr, err)
	}
	if sendErr == nil {
		d.log.Info("invoice notification sent",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("kind", string(kind)),
			zap.String("provider", d.provider.Name()),
		)
	}
	return sendErr
}

func (d *Dispatcher) send(ctx context.Context, kind invoicedomain.ReminderKind, inv invoicedomain.Invoice, customer *customerdomain.Customer, to string) error {
	if to == "" {
		return ErrNoRecipient
	}
	msg, err := buildMessage(kind, newInvoiceView(inv, customer), to)
	if err != nil {
		return err
	}
	return d.provider.Send(ctx, msg)
}
