package rendering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultConcurrency = 4
	renderTimeout      = time.Minute
	dateLayout         = "January 2, 2006"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrCreditNoteNotFound = errors.New("credit note not found")
	ErrDraftDocument      = errors.New("drafts are not rendered")
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Storage        Storage
	InvoiceRepo    invoicedomain.Repository
	CreditNoteRepo creditnotedomain.Repository
	CustomerRepo   customerdomain.Repository
}

// Service renders issued invoices and credit notes to PDF and records where
// the file was stored. Issued documents are immutable, so a rendered file is
// never regenerated.
type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	storage        Storage
	invoiceRepo    invoicedomain.Repository
	creditNoteRepo creditnotedomain.Repository
	customerRepo   customerdomain.Repository

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("rendering"),
		clock:          p.Clock,
		storage:        p.Storage,
		invoiceRepo:    p.InvoiceRepo,
		creditNoteRepo: p.CreditNoteRepo,
		customerRepo:   p.CustomerRepo,
		sem:            make(chan struct{}, defaultConcurrency),
	}
}

func (s *Service) RenderInvoiceAsync(ctx context.Context, orgID, invoiceID snowflake.ID) {
	s.async(ctx, "invoice", invoiceID, func(ctx context.Context) error {
		_, err := s.RenderInvoice(ctx, orgID, invoiceID)
		return err
	})
}

func (s *Service) RenderCreditNoteAsync(ctx context.Context, orgID, creditNoteID snowflake.ID) {
	s.async(ctx, "credit_note", creditNoteID, func(ctx context.Context) error {
		_, err := s.RenderCreditNote(ctx, orgID, creditNoteID)
		return err
	})
}

// Wait blocks until in-flight renders finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// A failed background render leaves pdf_path empty; RenderPending picks it up.
func (s *Service) async(ctx context.Context, kind string, id snowflake.ID, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		ctx, cancel := context.WithTimeout(ctx, renderTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("document render failed",
				zap.String("kind", kind),
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
	}()
}

// RenderInvoice renders an issued invoice and returns its storage path. An
// invoice that already has a PDF returns the stored path untouched.
func (s *Service) RenderInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (_ string, err error) {
	ctx, span := tracing.Start(ctx, "rendering.RenderInvoice",
		attribute.String("invoice_id", invoiceID.String()),
		attribute.String("org_id", orgID.String()),
	)
	defer func() { tracing.End(span, err) }()

	inv, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return "", err
	}
	if inv == nil {
		return "", ErrInvoiceNotFound
	}
	if inv.Status == invoicedomain.InvoiceStatusDraft || inv.Number == nil {
		return "", ErrDraftDocument
	}
	if inv.PDFPath != nil {
		return *inv.PDFPath, nil
	}

	items, err := s.invoiceRepo.ListItems(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return "", err
	}
	customer, err := s.customer(ctx, orgID, inv.CustomerID)
	if err != nil {
		return "", err
	}

	body, err := RenderPDF(invoiceDocument(inv, items, customer))
	if err != nil {
		return "", fmt.Errorf("render invoice %s: %w", *inv.Number, err)
	}
	key := documentKey(orgID, "invoices", *inv.Number)
	location, err := s.storage.Put(ctx, key, body, contentTypePDF)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		UpdateColumn("pdf_path", location).Error
	if err != nil {
		return "", err
	}
	s.log.Info("invoice rendered",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("number", *inv.Number),
		zap.String("pdf_path", location),
	)
	return location, nil
}

// RenderCreditNote renders an issued credit note and returns its storage path.
func (s *Service) RenderCreditNote(ctx context.Context, orgID, creditNoteID snowflake.ID) (_ string, err error) {
	ctx, span := tracing.Start(ctx, "rendering.RenderCreditNote",
		attribute.String("credit_note_id", creditNoteID.String()),
		attribute.String("org_id", orgID.String()),
	)
	defer func() { tracing.End(span, err) }()

	note, err := s.creditNoteRepo.FindByID(ctx, s.db, orgID, creditNoteID)
	if err != nil {
		return "", err
	}
	if note == nil {
		return "", ErrCreditNoteNotFound
	}
	if note.Status == creditnotedomain.StatusDraft || note.Number == nil {
		return "", ErrDraftDocument
	}
	if note.PDFPath != nil {
		return *note.PDFPath, nil
	}

	items, err := s.creditNoteRepo.ListItems(ctx, s.db, orgID, creditNoteID)
	if err != nil {
		return "", err
	}
	customer, err := s.customer(ctx, orgID, note.CustomerID)
	if err != nil {
		return "", err
	}
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, orgID, note.InvoiceID)
	if err != nil {
		return "", err
	}

	body, err := RenderPDF(creditNoteDocument(note, items, customer, inv))
	if err != nil {
		return "", fmt.Errorf("render credit note %s: %w", *note.Number, err)
	}
	key := documentKey(orgID, "credit-notes", *note.Number)
	location, err := s.storage.Put(ctx, key, body, contentTypePDF)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).
		Model(&creditnotedomain.CreditNote{}).
		Where("org_id = ? AND id = ?", orgID, creditNoteID).
		UpdateColumn("pdf_path", location).Error
	if err != nil {
		return "", err
	}
	s.log.Info("credit note rendered",
		zap.String("credit_note_id", creditNoteID.String()),
		zap.String("number", *note.Number),
		zap.String("pdf_path", location),
	)
	return location, nil
}

type pendingDocument struct {
	ID    snowflake.ID
	OrgID snowflake.ID
}

// RenderPending renders up to limit issued documents that have no PDF yet,
// invoices first. It returns how many were rendered; failures are joined and
// the remaining documents are still attempted.
func (s *Service) RenderPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	var invoices []pendingDocument
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Select("id, org_id").
		Where("pdf_path IS NULL AND status <> ?", invoicedomain.InvoiceStatusDraft).
		Order("issued_at asc, id asc").
		Limit(limit).
		Scan(&invoices).Error
	if err != nil {
		return 0, err
	}

	var notes []pendingDocument
	if remaining := limit - len(invoices); remaining > 0 {
		err = s.db.WithContext(ctx).
			Model(&creditnotedomain.CreditNote{}).
			Select("id, org_id").
			Where("pdf_path IS NULL AND status <> ?", creditnotedomain.StatusDraft).
			Order("issued_at asc, id asc").
			Limit(remaining).
			Scan(&notes).Error
		if err != nil {
			return 0, err
		}
	}

	var (
		rendered int
		errs     []error
	)
	for _, doc := range invoices {
		if _, err := s.RenderInvoice(ctx, doc.OrgID, doc.ID); err != nil {
			errs = append(errs, fmt.Errorf("invoice %s: %w", doc.ID, err))
			continue
		}
		rendered++
	}
	for _, doc := range notes {
		if _, err := s.RenderCreditNote(ctx, doc.OrgID, doc.ID); err != nil {
			errs = append(errs, fmt.Errorf("credit note %s: %w", doc.ID, err))
			continue
		}
		rendered++
	}
	return rendered, errors.Join(errs...)
}

func (s *Service) customer(ctx context.Context, orgID, customerID snowflake.ID) (*customerdomain.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrNotFound
	}
	return customer, nil
}

// documentKey builds "{org}/{kind}/{number}.pdf" with the number slugged so
// prefixes like "INV/2026" cannot create directories.
func documentKey(orgID snowflake.ID, kind, number string) string {
	name := slug.Make(strings.TrimSpace(number))
	if name == "" {
		name = "document"
	}
	return orgID.String() + "/" + kind + "/" + name + ".pdf"
}
