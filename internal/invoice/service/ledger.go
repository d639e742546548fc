package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"gorm.io/gorm"
)

func (s *Service) LockForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

// ApplySettlement books a signed change to amount_paid and credit_applied and
// re-derives amount_due and status. Increases need an open invoice and may
// not exceed amount_due. Decreases (refunds, credit reversals) are accepted
// on any issued invoice; closed invoices keep their status.
func (s *Service) ApplySettlement(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, delta invoicedomain.Settlement) (invoicedomain.InvoiceStatus, error) {
	from := inv.Status
	if inv.Status == invoicedomain.InvoiceStatusDraft {
		return from, invoicedomain.ErrInvoiceNotOpen
	}

	increase := delta.PaidDelta + delta.CreditDelta
	if delta.PaidDelta > 0 || delta.CreditDelta > 0 {
		if !inv.Status.Open() {
			return from, invoicedomain.ErrInvoiceNotOpen
		}
		if increase > inv.AmountDue {
			return from, invoicedomain.ErrOverpayment
		}
	}

	paid := inv.AmountPaid + delta.PaidDelta
	credit := inv.CreditApplied + delta.CreditDelta
	if paid < 0 || credit < 0 {
		return from, invoicedomain.ErrNegativeBalance
	}

	now := s.clock.Now().UTC()
	inv.AmountPaid = paid
	inv.CreditApplied = credit
	inv.AmountDue = inv.Balance()
	if !inv.Status.Closed() {
		inv.Status = deriveOpenStatus(inv, now)
		if inv.Status == invoicedomain.InvoiceStatusPaid {
			if inv.PaidAt == nil {
				inv.PaidAt = &now
			}
		} else {
			inv.PaidAt = nil
		}
	}
	inv.UpdatedAt = now

	if err := s.repo.Save(ctx, tx, inv); err != nil {
		return from, err
	}
	if from != inv.Status {
		s.metrics.RecordInvoiceTransition(ctx, string(from), string(inv.Status))
	}
	return from, nil
}

// CreateDraftTx materializes a draft from template items inside tx.
func (s *Service) CreateDraftTx(ctx context.Context, tx *gorm.DB, in invoicedomain.DraftInput) (*invoicedomain.Invoice, error) {
	if in.OrgID == 0 || in.CustomerID == 0 {
		return nil, invoicedomain.ErrInvalidCustomer
	}
	currency, err := money.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, invoicedomain.ErrInvalidCurrency
	}
	behavior := in.TaxBehavior
	if behavior == "" {
		behavior = taxdomain.TaxBehaviorExclusive
	}
	if !behavior.Valid() {
		return nil, invoicedomain.ErrInvalidTaxBehavior
	}
	if in.NetTermsDays < 0 {
		return nil, invoicedomain.ErrInvalidNetTerms
	}

	inv := s.newDraft(in.OrgID, in.CustomerID, currency, behavior, in.NetTermsDays, strings.TrimSpace(in.Memo))
	inv.RecurringInvoiceID = in.RecurringInvoiceID
	inv.BillingPeriod = in.BillingPeriod
	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	items := make([]*invoicedomain.InvoiceItem, 0, len(in.Items))
	for _, src := range in.Items {
		if src.Quantity.IsNegative() {
			return nil, invoicedomain.ErrInvalidQuantity
		}
		if src.UnitAmount < 0 {
			return nil, invoicedomain.ErrInvalidUnitAmount
		}
		item := &invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			OrgID:       inv.OrgID,
			InvoiceID:   inv.ID,
			Description: src.Description,
			Quantity:    src.Quantity,
			UnitAmount:  src.UnitAmount,
			TaxRateID:   src.TaxRateID,
			DiscountID:  src.DiscountID,
			SortOrder:   src.SortOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := s.recomputeTx(ctx, tx, inv, items); err != nil {
		return nil, err
	}
	return inv, nil
}
