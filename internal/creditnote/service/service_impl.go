package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    *config.LedgerConfigHolder
	Repo      creditnotedomain.Repository
	Ledger    invoicedomain.Ledger
	Sequences sequencedomain.Service
	Taxes     taxdomain.Resolver

	AuditSvc auditdomain.Service               `optional:"true"`
	Metrics  *metrics.Metrics                  `optional:"true"`
	Renderer creditnotedomain.DocumentRenderer `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       *config.LedgerConfigHolder
	repo      creditnotedomain.Repository
	ledger    invoicedomain.Ledger
	sequences sequencedomain.Service
	taxes     taxdomain.Resolver

	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	renderer creditnotedomain.DocumentRenderer
}

func NewService(p Params) creditnotedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("creditnote.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		repo:      p.Repo,
		ledger:    p.Ledger,
		sequences: p.Sequences,
		taxes:     p.Taxes,

		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		renderer: p.Renderer,
	}
}

// Create opens a draft credit note against an issued invoice. Customer,
// currency and tax behavior are taken from the invoice.
func (s *Service) Create(ctx context.Context, req creditnotedomain.CreateRequest) (*creditnotedomain.Detail, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return nil, creditnotedomain.ErrInvalidInvoiceID
	}

	var detail *creditnotedomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.LockForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusVoid:
			return apperr.WithMessage(creditnotedomain.ErrInvoiceNotIssued, "invoice is "+string(inv.Status))
		}

		now := s.clock.Now().UTC()
		note := &creditnotedomain.CreditNote{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			CustomerID:  inv.CustomerID,
			InvoiceID:   inv.ID,
			Status:      creditnotedomain.StatusDraft,
			Currency:    inv.Currency,
			TaxBehavior: inv.TaxBehavior,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			note.Reason = &reason
		}
		if err := s.repo.Insert(ctx, tx, note); err != nil {
			return err
		}

		items := make([]*creditnotedomain.CreditNoteItem, 0, len(req.Items))
		for i, input := range req.Items {
			item, err := s.buildItem(ctx, tx, note, input, i)
			if err != nil {
				return err
			}
			if err := s.repo.InsertItem(ctx, tx, item); err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := s.recomputeTx(ctx, tx, note, items); err != nil {
			return err
		}
		detail = toDetail(note, items)
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}
	return detail, nil
}

func (s *Service) AddItem(ctx context.Context, creditNoteID string, input creditnotedomain.ItemInput) (*creditnotedomain.Detail, error) {
	return s.mutateDraft(ctx, creditNoteID, func(tx *gorm.DB, note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem) ([]*creditnotedomain.CreditNoteItem, error) {
		item, err := s.buildItem(ctx, tx, note, input, len(items))
		if err != nil {
			return nil, err
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return nil, err
		}
		return append(items, item), nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, creditNoteID, itemID string) (*creditnotedomain.Detail, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil || id == 0 {
		return nil, creditnotedomain.ErrInvalidItemID
	}
	return s.mutateDraft(ctx, creditNoteID, func(tx *gorm.DB, note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem) ([]*creditnotedomain.CreditNoteItem, error) {
		deleted, err := s.repo.DeleteItem(ctx, tx, note.OrgID, note.ID, id)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, creditnotedomain.ErrItemNotFound
		}
		kept := items[:0]
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		return kept, nil
	})
}

type draftMutation func(tx *gorm.DB, note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem) ([]*creditnotedomain.CreditNoteItem, error)

func (s *Service) mutateDraft(ctx context.Context, creditNoteID string, fn draftMutation) (*creditnotedomain.Detail, error) {
	orgID, id, err := s.parseScope(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}

	var detail *creditnotedomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if note.Status != creditnotedomain.StatusDraft {
			return creditnotedomain.ErrNotDraft
		}
		items, err := s.repo.ListItems(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		items, err = fn(tx, note, items)
		if err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, note, items); err != nil {
			return err
		}
		detail = toDetail(note, items)
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}
	return detail, nil
}

// Issue numbers a draft from the credit note sequence. The credit raised
// against one invoice may not exceed that invoice's total.
func (s *Service) Issue(ctx context.Context, creditNoteID string) (*creditnotedomain.Detail, error) {
	orgID, id, err := s.parseScope(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}

	var (
		detail *creditnotedomain.Detail
		issued bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		items, err := s.repo.ListItems(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		switch note.Status {
		case creditnotedomain.StatusDraft:
		case creditnotedomain.StatusVoid:
			return apperr.WithMessage(creditnotedomain.ErrNotDraft, "credit note is void")
		default:
			detail = toDetail(note, items)
			return nil
		}
		if len(items) == 0 {
			return creditnotedomain.ErrNoItems
		}
		if err := s.recomputeTx(ctx, tx, note, items); err != nil {
			return err
		}
		if note.Total <= 0 {
			return creditnotedomain.ErrZeroTotal
		}

		inv, err := s.ledger.LockForUpdate(ctx, tx, orgID, note.InvoiceID)
		if err != nil {
			return err
		}
		credited, err := s.repo.SumIssuedForInvoice(ctx, tx, orgID, inv.ID)
		if err != nil {
			return err
		}
		if credited+note.Total > inv.Total {
			return creditnotedomain.ErrExceedsInvoiceTotal
		}

		now := s.clock.Now().UTC()
		alloc, err := s.sequences.Next(ctx, tx, sequencedomain.Scope{
			OrgID:        orgID,
			DocumentType: sequencedomain.DocumentTypeCreditNote,
			Year:         now.Year(),
		})
		if err != nil {
			return err
		}
		year := alloc.Scope.Year
		seq := alloc.Value
		number := alloc.Number
		note.Number = &number
		note.SequenceYear = &year
		note.SequenceNo = &seq
		note.Status = creditnotedomain.StatusIssued
		note.AmountRemaining = note.Total
		note.IssuedAt = &now
		note.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, note); err != nil {
			return err
		}
		issued = true
		detail = toDetail(note, items)
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}

	if issued {
		note := detail.CreditNote
		s.log.Info("credit note issued",
			zap.String("credit_note_id", note.ID.String()),
			zap.String("number", deref(note.Number)),
			zap.Int64("total", note.Total),
		)
		s.audit(ctx, orgID, auditdomain.ActionCreditNoteIssued, "credit_note", note.ID, map[string]any{
			"number":     deref(note.Number),
			"invoice_id": note.InvoiceID.String(),
			"total":      note.Total,
			"currency":   note.Currency,
		})
		if s.renderer != nil {
			s.renderer.RenderCreditNoteAsync(ctx, orgID, note.ID)
		}
	}
	return detail, nil
}

// Void cancels a credit note that has no net applications.
func (s *Service) Void(ctx context.Context, creditNoteID string) (*creditnotedomain.CreditNote, error) {
	orgID, id, err := s.parseScope(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}

	var (
		note   *creditnotedomain.CreditNote
		voided bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err = s.lock(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		switch note.Status {
		case creditnotedomain.StatusVoid:
			return nil
		case creditnotedomain.StatusApplied:
			return creditnotedomain.ErrHasApplications
		}
		if note.Status == creditnotedomain.StatusIssued && note.Applied() != 0 {
			return creditnotedomain.ErrHasApplications
		}

		now := s.clock.Now().UTC()
		note.Status = creditnotedomain.StatusVoid
		note.AmountRemaining = 0
		note.VoidedAt = &now
		note.UpdatedAt = now
		voided = true
		return s.repo.Save(ctx, tx, note)
	})
	if err != nil {
		return nil, s.classify(err)
	}
	if voided {
		s.audit(ctx, orgID, auditdomain.ActionCreditNoteVoided, "credit_note", note.ID, map[string]any{
			"number": deref(note.Number),
			"total":  note.Total,
		})
	}
	return note, nil
}

func (s *Service) Get(ctx context.Context, creditNoteID string) (*creditnotedomain.Detail, error) {
	orgID, id, err := s.parseScope(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}
	note, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, creditnotedomain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	return toDetail(note, items), nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]creditnotedomain.CreditNote, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, creditnotedomain.ErrInvalidInvoiceID
	}
	items, err := s.repo.ListByInvoice(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	notes := make([]creditnotedomain.CreditNote, 0, len(items))
	for _, item := range items {
		notes = append(notes, *item)
	}
	return notes, nil
}

func (s *Service) buildItem(ctx context.Context, tx *gorm.DB, note *creditnotedomain.CreditNote, input creditnotedomain.ItemInput, position int) (*creditnotedomain.CreditNoteItem, error) {
	if input.Quantity.IsNegative() {
		return nil, creditnotedomain.ErrInvalidQuantity
	}
	if input.UnitAmount < 0 {
		return nil, creditnotedomain.ErrInvalidUnitAmount
	}

	var taxRateID *snowflake.ID
	if raw := strings.TrimSpace(input.TaxRateID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return nil, taxdomain.ErrInvalidID
		}
		if _, err := s.taxes.Require(ctx, tx, note.OrgID, id); err != nil {
			return nil, err
		}
		taxRateID = &id
	}

	sortOrder := position
	if input.SortOrder != nil {
		sortOrder = *input.SortOrder
	}
	now := s.clock.Now().UTC()
	return &creditnotedomain.CreditNoteItem{
		ID:           s.genID.Generate(),
		OrgID:        note.OrgID,
		CreditNoteID: note.ID,
		Description:  strings.TrimSpace(input.Description),
		Quantity:     input.Quantity,
		UnitAmount:   input.UnitAmount,
		TaxRateID:    taxRateID,
		SortOrder:    sortOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) recomputeTx(ctx context.Context, tx *gorm.DB, note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem) error {
	rates := map[snowflake.ID]*taxdomain.TaxRate{}
	for _, item := range items {
		if item.TaxRateID == nil {
			continue
		}
		if _, seen := rates[*item.TaxRateID]; seen {
			continue
		}
		rate, err := s.taxes.Resolve(ctx, tx, note.OrgID, *item.TaxRateID)
		if err != nil {
			return err
		}
		rates[*item.TaxRateID] = rate
	}

	now := s.clock.Now().UTC()
	totals, err := Recompute(items, rates, note.TaxBehavior, now, s.cfg.Get().Tax.InclusiveMethod)
	if err != nil {
		return err
	}
	note.Subtotal = totals.Subtotal
	note.TaxTotal = totals.TaxTotal
	note.Total = totals.Total
	note.UpdatedAt = now

	if err := s.repo.SaveItems(ctx, tx, items); err != nil {
		return err
	}
	return s.repo.Save(ctx, tx, note)
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*creditnotedomain.CreditNote, error) {
	note, err := s.repo.FindForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, creditnotedomain.ErrNotFound
	}
	return note, nil
}

func toDetail(note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem) *creditnotedomain.Detail {
	detail := &creditnotedomain.Detail{CreditNote: *note, Items: make([]creditnotedomain.CreditNoteItem, 0, len(items))}
	for _, item := range items {
		detail.Items = append(detail.Items, *item)
	}
	return detail
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, targetType, &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) classify(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if db.IsDuplicateKeyErr(err) || db.IsRetryableErr(err) {
		return apperr.Wrap(apperr.KindConflict, "credit_note_conflict", err)
	}
	return err
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, creditnotedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) parseScope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	noteID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || noteID == 0 {
		return 0, 0, creditnotedomain.ErrInvalidID
	}
	return orgID, noteID, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
