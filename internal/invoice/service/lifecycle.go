package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Issue numbers and freezes a draft. Issuing an invoice that is already
// issued returns it unchanged.
func (s *Service) Issue(ctx context.Context, invoiceID string) (detail *invoicedomain.InvoiceDetail, err error) {
	orgID, id, err := s.parseScope(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "invoice.Issue",
		attribute.String("invoice_id", id.String()),
		attribute.String("org_id", orgID.String()),
	)
	defer func() { tracing.End(span, err) }()

	var (
		issued *invoicedomain.Invoice
		items  []*invoicedomain.InvoiceItem
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.LockForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		ok, err := s.IssueTx(ctx, tx, inv)
		if err != nil {
			return err
		}
		if ok {
			issued = inv
		}
		items, err = s.repo.ListItems(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		detail = toDetail(inv, items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if issued != nil {
		s.AfterIssue(ctx, issued)
	}
	return detail, nil
}

// IssueTx issues a draft locked by the caller. The final recompute happens
// here so the stored item amounts are the ones in force at issuance. An
// invoice that already carries a number is left as is; any other non-draft
// fails.
func (s *Service) IssueTx(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (bool, error) {
	if inv.Status != invoicedomain.InvoiceStatusDraft {
		if inv.Number != nil {
			return false, nil
		}
		return false, apperr.WithMessage(invoicedomain.ErrInvalidTransition,
			fmt.Sprintf("cannot issue a %s invoice", inv.Status))
	}

	items, err := s.repo.ListItems(ctx, tx, inv.OrgID, inv.ID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, invoicedomain.ErrNoItems
	}

	totals, err := s.recomputeWithTotals(ctx, tx, inv, items)
	if err != nil {
		return false, err
	}

	now := s.clock.Now().UTC()
	alloc, err := s.sequences.Next(ctx, tx, sequencedomain.Scope{
		OrgID:        inv.OrgID,
		DocumentType: sequencedomain.DocumentTypeInvoice,
		Year:         now.Year(),
	})
	if err != nil {
		return false, err
	}

	year := alloc.Scope.Year
	seq := alloc.Value
	number := alloc.Number
	due := now.AddDate(0, 0, inv.NetTermsDays)
	inv.Number = &number
	inv.SequenceYear = &year
	inv.SequenceNo = &seq
	inv.IssuedAt = &now
	inv.DueAt = &due
	inv.Status = invoicedomain.InvoiceStatusIssued
	if inv.AmountDue == 0 {
		inv.Status = invoicedomain.InvoiceStatusPaid
		inv.PaidAt = &now
	}
	inv.UpdatedAt = now

	discountIDs := make([]snowflake.ID, 0, len(totals.Redemptions))
	for discountID := range totals.Redemptions {
		discountIDs = append(discountIDs, discountID)
	}
	sort.Slice(discountIDs, func(i, j int) bool { return discountIDs[i] < discountIDs[j] })
	for _, discountID := range discountIDs {
		if _, err := s.discounts.Redeem(ctx, tx, discountdomain.RedeemInput{
			OrgID:      inv.OrgID,
			DiscountID: discountID,
			InvoiceID:  inv.ID,
			CustomerID: inv.CustomerID,
			Amount:     totals.Redemptions[discountID],
		}); err != nil {
			return false, err
		}
	}

	if err := s.repo.Save(ctx, tx, inv); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Void(ctx context.Context, invoiceID, reason string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, invoiceID, invoicedomain.InvoiceStatusVoid, auditdomain.ActionInvoiceVoided, reason)
}

func (s *Service) WriteOff(ctx context.Context, invoiceID, reason string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, invoiceID, invoicedomain.InvoiceStatusWrittenOff, auditdomain.ActionInvoiceWrittenOff, reason)
}

func (s *Service) Archive(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, invoiceID, invoicedomain.InvoiceStatusArchived, auditdomain.ActionInvoiceArchived, "")
}

// transition moves an invoice to a closing status. Totals, payments and
// credits are kept as they are; only the status and its timestamp change.
func (s *Service) transition(ctx context.Context, invoiceID string, to invoicedomain.InvoiceStatus, action, reason string) (*invoicedomain.Invoice, error) {
	orgID, id, err := s.parseScope(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var (
		result  *invoicedomain.Invoice
		from    invoicedomain.InvoiceStatus
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.LockForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		result = inv
		from = inv.Status
		if inv.Status == to {
			return nil
		}
		if !canTransition(inv.Status, to) {
			return apperr.WithMessage(invoicedomain.ErrInvalidTransition,
				fmt.Sprintf("cannot move invoice from %s to %s", inv.Status, to))
		}

		now := s.clock.Now().UTC()
		switch to {
		case invoicedomain.InvoiceStatusVoid:
			inv.VoidedAt = &now
			if err := s.discounts.MarkInvoiceVoided(ctx, tx, orgID, id, now); err != nil {
				return err
			}
		case invoicedomain.InvoiceStatusWrittenOff:
			inv.WrittenOffAt = &now
		case invoicedomain.InvoiceStatusArchived:
			inv.ArchivedAt = &now
		}
		inv.Status = to
		inv.UpdatedAt = now
		changed = true
		return s.repo.Save(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.RecordInvoiceTransition(ctx, string(from), string(to))
		extra := map[string]any{"previous_status": string(from)}
		if reason = strings.TrimSpace(reason); reason != "" {
			extra["reason"] = reason
		}
		s.emitAudit(ctx, action, result, extra)
	}
	return result, nil
}

// DeleteDraft hard deletes a draft and its items. Issued invoices are never deleted.
func (s *Service) DeleteDraft(ctx context.Context, invoiceID string) error {
	orgID, id, err := s.parseScope(ctx, invoiceID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.LockForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if inv.Status != invoicedomain.InvoiceStatusDraft || inv.Number != nil {
			return invoicedomain.ErrInvoiceNotDeletable
		}
		return s.repo.Delete(ctx, tx, orgID, id)
	})
}

func (s *Service) MarkPastDue(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.repo.ListPastDueCandidates(ctx, s.db, now.UTC(), limit)
	if err != nil {
		return 0, err
	}

	var (
		moved int
		errs  []error
	)
	for _, candidate := range candidates {
		var changed *invoicedomain.Invoice
		var from invoicedomain.InvoiceStatus
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inv, err := s.LockForUpdate(ctx, tx, candidate.OrgID, candidate.ID)
			if err != nil {
				return err
			}
			if !canTransition(inv.Status, invoicedomain.InvoiceStatusPastDue) || inv.DueAt == nil || !now.After(*inv.DueAt) {
				return nil
			}
			from = inv.Status
			inv.Status = invoicedomain.InvoiceStatusPastDue
			inv.UpdatedAt = s.clock.Now().UTC()
			if err := s.repo.Save(ctx, tx, inv); err != nil {
				return err
			}
			changed = inv
			return nil
		})
		if err != nil {
			s.log.Warn("mark past due failed",
				zap.String("invoice_id", candidate.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if changed != nil {
			moved++
			s.metrics.RecordInvoiceTransition(ctx, string(from), string(changed.Status))
			if s.notifier != nil {
				s.notifier.InvoicePastDue(ctx, *changed)
			}
		}
	}
	return moved, errors.Join(errs...)
}
