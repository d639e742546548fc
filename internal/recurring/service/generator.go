package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type outcome struct {
	gen         recurringdomain.Generation
	issued      *invoicedomain.Invoice
	completed   bool
	occurrences int
}

// GenerateDue bills every due template, one row lock and transaction per
// template. A template that fails is left for the next run and does not stop
// the batch.
func (s *Service) GenerateDue(ctx context.Context, now time.Time, limit int) ([]recurringdomain.Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	var (
		results []recurringdomain.Generation
		failed  []snowflake.ID
		errs    error
	)
	for processed := 0; processed < limit; processed++ {
		if err := ctx.Err(); err != nil {
			return results, errors.Join(errs, err)
		}

		var (
			res     *outcome
			claimed *recurringdomain.RecurringInvoice
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			recs, err := s.repo.ClaimDue(ctx, tx, now, 1, failed)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return nil
			}
			claimed = recs[0]
			res, err = s.generateTx(orgcontext.WithOrgID(ctx, int64(claimed.OrgID)), tx, claimed, now)
			return err
		})
		if claimed == nil && err == nil {
			break
		}
		if err != nil {
			if claimed == nil {
				return results, errors.Join(errs, err)
			}
			failed = append(failed, claimed.ID)
			errs = errors.Join(errs, err)
			s.log.Warn("recurring invoice generation failed",
				zap.String("recurring_invoice_id", claimed.ID.String()),
				zap.String("org_id", claimed.OrgID.String()),
				zap.Error(err),
			)
			continue
		}
		s.afterGenerate(orgcontext.WithOrgID(ctx, int64(claimed.OrgID)), claimed.OrgID, res)
		results = append(results, res.gen)
	}
	return results, errs
}

// GenerateOne bills a single template of the org in ctx. A template that is
// not due yet comes back skipped.
func (s *Service) GenerateOne(ctx context.Context, id string, now time.Time) (gen *recurringdomain.Generation, err error) {
	orgID, recID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "recurring.GenerateOne",
		attribute.String("recurring_invoice_id", recID.String()),
		attribute.String("org_id", orgID.String()),
	)
	defer func() { tracing.End(span, err) }()

	var res *outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.lock(ctx, tx, orgID, recID)
		if err != nil {
			return err
		}
		if rec.Status != recurringdomain.StatusActive {
			return recurringdomain.ErrNotDue
		}
		res, err = s.generateTx(ctx, tx, rec, now.UTC())
		return err
	})
	if err != nil {
		return nil, s.classify(err)
	}
	s.afterGenerate(ctx, orgID, res)
	return &res.gen, nil
}

// generateTx materializes the period at next_billing_date and advances the
// schedule. The caller holds the row lock; the period guard makes a second
// pass over the same period a no-op.
func (s *Service) generateTx(ctx context.Context, tx *gorm.DB, rec *recurringdomain.RecurringInvoice, now time.Time) (*outcome, error) {
	period := rec.NextBillingDate
	res := &outcome{gen: recurringdomain.Generation{
		RecurringInvoiceID: rec.ID,
		BillingPeriod:      period,
		Status:             rec.Status,
	}}
	if !rec.Due(now) {
		res.gen.Skipped = true
		return res, nil
	}

	if !rec.AlreadyBilled() {
		items, err := s.repo.ListItems(ctx, tx, rec.OrgID, rec.ID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, recurringdomain.ErrNoItems
		}
		draftItems := make([]invoicedomain.DraftItem, 0, len(items))
		for _, item := range items {
			draftItems = append(draftItems, invoicedomain.DraftItem{
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitAmount:  item.UnitAmount,
				TaxRateID:   item.TaxRateID,
				DiscountID:  item.DiscountID,
				SortOrder:   item.SortOrder,
			})
		}

		recID := rec.ID
		billingPeriod := period
		inv, err := s.ledger.CreateDraftTx(ctx, tx, invoicedomain.DraftInput{
			OrgID:              rec.OrgID,
			CustomerID:         rec.CustomerID,
			Currency:           rec.Currency,
			TaxBehavior:        rec.TaxBehavior,
			NetTermsDays:       rec.NetTermsDays,
			Memo:               rec.Memo,
			RecurringInvoiceID: &recID,
			BillingPeriod:      &billingPeriod,
			Items:              draftItems,
		})
		if err != nil {
			return nil, err
		}
		if rec.AutoIssue {
			ok, err := s.ledger.IssueTx(ctx, tx, inv)
			if err != nil {
				return nil, err
			}
			if ok {
				res.issued = inv
				res.gen.Issued = true
			}
		}
		invoiceID := inv.ID
		res.gen.InvoiceID = &invoiceID

		generatedAt := now
		rec.LastGeneratedAt = &generatedAt
		rec.LastBilledPeriod = &billingPeriod
		rec.OccurrencesCount++
	} else {
		res.gen.Skipped = true
	}

	next, err := NextBillingDate(period, rec.BillingInterval, rec.IntervalCount, anchorDay(rec))
	if err != nil {
		return nil, err
	}
	rec.NextBillingDate = next
	if (rec.OccurrencesLimit != nil && rec.OccurrencesCount >= *rec.OccurrencesLimit) ||
		(rec.EndDate != nil && next.After(*rec.EndDate)) {
		rec.Status = recurringdomain.StatusCompleted
		res.completed = true
	}
	rec.UpdatedAt = now
	if err := s.repo.Save(ctx, tx, rec); err != nil {
		return nil, err
	}

	res.gen.Status = rec.Status
	res.occurrences = rec.OccurrencesCount
	return res, nil
}

func (s *Service) afterGenerate(ctx context.Context, orgID snowflake.ID, res *outcome) {
	if res == nil || res.gen.InvoiceID == nil {
		return
	}
	if res.issued != nil {
		s.ledger.AfterIssue(ctx, res.issued)
	}
	s.metrics.RecordRecurringGenerated(ctx, res.gen.Issued)

	s.log.Info("recurring invoice generated",
		zap.String("recurring_invoice_id", res.gen.RecurringInvoiceID.String()),
		zap.String("invoice_id", res.gen.InvoiceID.String()),
		zap.String("billing_period", dateOnly(res.gen.BillingPeriod)),
		zap.Bool("issued", res.gen.Issued),
		zap.Int("occurrences_count", res.occurrences),
	)
	s.audit(ctx, orgID, auditdomain.ActionRecurringGenerated, res.gen.RecurringInvoiceID, map[string]any{
		"invoice_id":        res.gen.InvoiceID.String(),
		"billing_period":    dateOnly(res.gen.BillingPeriod),
		"issued":            res.gen.Issued,
		"occurrences_count": res.occurrences,
	})
	if res.completed {
		s.audit(ctx, orgID, auditdomain.ActionRecurringCompleted, res.gen.RecurringInvoiceID, map[string]any{
			"occurrences_count": res.occurrences,
		})
	}
}
