package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Apply moves credit onto an invoice of the same customer and currency. The
// amount is bounded by the note's remaining balance and the invoice's
// amount_due; both are decremented in one transaction.
func (s *Service) Apply(ctx context.Context, req creditnotedomain.ApplyRequest) (_ *creditnotedomain.CreditNoteApplication, err error) {
	orgID, noteID, err := s.parseScope(ctx, req.CreditNoteID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, creditnotedomain.ErrInvalidAmount
	}
	var targetID snowflake.ID
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		targetID, err = snowflake.ParseString(raw)
		if err != nil || targetID == 0 {
			return nil, creditnotedomain.ErrInvalidInvoiceID
		}
	}

	ctx, span := tracing.Start(ctx, "creditnote.Apply",
		attribute.String("credit_note_id", noteID.String()),
		attribute.String("org_id", orgID.String()),
	)
	defer func() { tracing.End(span, err) }()

	var (
		app  *creditnotedomain.CreditNoteApplication
		note *creditnotedomain.CreditNote
		inv  *invoicedomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err = s.lock(ctx, tx, orgID, noteID)
		if err != nil {
			return err
		}
		if note.Status != creditnotedomain.StatusIssued {
			return apperr.WithMessage(creditnotedomain.ErrNotApplicable, "credit note is "+string(note.Status))
		}
		if req.Amount > note.AmountRemaining {
			return creditnotedomain.ErrExceedsRemaining
		}

		if targetID == 0 {
			targetID = note.InvoiceID
		}
		inv, err = s.ledger.LockForUpdate(ctx, tx, orgID, targetID)
		if err != nil {
			return err
		}
		if inv.CustomerID != note.CustomerID {
			return creditnotedomain.ErrCustomerMismatch
		}
		if inv.Currency != note.Currency {
			return creditnotedomain.ErrCurrencyMismatch
		}
		if _, err := s.ledger.ApplySettlement(ctx, tx, inv, invoicedomain.Settlement{CreditDelta: req.Amount}); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		note.AmountRemaining -= req.Amount
		if note.AmountRemaining == 0 {
			note.Status = creditnotedomain.StatusApplied
		}
		note.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, note); err != nil {
			return err
		}

		app = &creditnotedomain.CreditNoteApplication{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			CreditNoteID:  note.ID,
			InvoiceID:     inv.ID,
			AmountApplied: req.Amount,
			AppliedAt:     now,
		}
		return s.repo.InsertApplication(ctx, tx, app)
	})
	if err != nil {
		return nil, s.classify(err)
	}

	s.metrics.RecordCreditApplied(ctx, note.Currency, app.AmountApplied)
	s.log.Info("credit note applied",
		zap.String("credit_note_id", note.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.Int64("amount", app.AmountApplied),
		zap.Int64("amount_remaining", note.AmountRemaining),
		zap.Int64("invoice_amount_due", inv.AmountDue),
	)
	s.audit(ctx, orgID, auditdomain.ActionCreditNoteApplied, "credit_note", note.ID, map[string]any{
		"application_id":   app.ID.String(),
		"invoice_id":       inv.ID.String(),
		"amount":           app.AmountApplied,
		"amount_remaining": note.AmountRemaining,
		"invoice_status":   string(inv.Status),
	})
	return app, nil
}

// ReverseApplication books an equal and opposite application, restoring the
// invoice's amount_due and the note's remaining balance. Each application can
// be reversed once.
func (s *Service) ReverseApplication(ctx context.Context, applicationID string) (*creditnotedomain.CreditNoteApplication, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	appID, err := snowflake.ParseString(strings.TrimSpace(applicationID))
	if err != nil || appID == 0 {
		return nil, creditnotedomain.ErrInvalidID
	}

	var (
		reversal *creditnotedomain.CreditNoteApplication
		note     *creditnotedomain.CreditNote
		inv      *invoicedomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindApplication(ctx, tx, orgID, appID)
		if err != nil {
			return err
		}
		if original == nil {
			return creditnotedomain.ErrApplicationNotFound
		}
		if original.IsReversal() || original.AmountApplied <= 0 {
			return apperr.WithMessage(creditnotedomain.ErrNotReversible, "reversals cannot be reversed")
		}

		note, err = s.lock(ctx, tx, orgID, original.CreditNoteID)
		if err != nil {
			return err
		}
		existing, err := s.repo.FindReversal(ctx, tx, orgID, original.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return creditnotedomain.ErrAlreadyReversed
		}

		inv, err = s.ledger.LockForUpdate(ctx, tx, orgID, original.InvoiceID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ApplySettlement(ctx, tx, inv, invoicedomain.Settlement{CreditDelta: -original.AmountApplied}); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		note.AmountRemaining += original.AmountApplied
		note.Status = creditnotedomain.StatusIssued
		note.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, note); err != nil {
			return err
		}

		reverses := original.ID
		reversal = &creditnotedomain.CreditNoteApplication{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			CreditNoteID:  note.ID,
			InvoiceID:     inv.ID,
			AmountApplied: -original.AmountApplied,
			ReversesID:    &reverses,
			AppliedAt:     now,
		}
		return s.repo.InsertApplication(ctx, tx, reversal)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, creditnotedomain.ErrAlreadyReversed
		}
		return nil, s.classify(err)
	}

	s.audit(ctx, orgID, auditdomain.ActionCreditNoteReversed, "credit_note", note.ID, map[string]any{
		"application_id": reversal.ID.String(),
		"reverses_id":    reversal.ReversesID.String(),
		"invoice_id":     inv.ID.String(),
		"amount":         reversal.AmountApplied,
		"invoice_status": string(inv.Status),
	})
	return reversal, nil
}

func (s *Service) ListApplications(ctx context.Context, creditNoteID string) ([]creditnotedomain.CreditNoteApplication, error) {
	orgID, id, err := s.parseScope(ctx, creditNoteID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListApplications(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	apps := make([]creditnotedomain.CreditNoteApplication, 0, len(items))
	for _, item := range items {
		apps = append(apps, *item)
	}
	return apps, nil
}
