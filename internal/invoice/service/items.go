package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	discountservice "github.com/smallbiznis/ledgerbook/internal/discount/service"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"gorm.io/gorm"
)

type draftMutation func(tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error)

// mutateDraft locks the invoice, refuses anything but a draft, applies fn and
// recomputes before commit.
func (s *Service) mutateDraft(ctx context.Context, invoiceID string, fn draftMutation) (*invoicedomain.InvoiceDetail, error) {
	orgID, id, err := s.parseScope(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var detail *invoicedomain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if inv.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvoiceNotDraft
		}

		items, err := s.repo.ListItems(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		items, err = fn(tx, inv, items)
		if err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, inv, items); err != nil {
			return err
		}
		detail = toDetail(inv, items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) AddItem(ctx context.Context, invoiceID string, input invoicedomain.ItemInput) (*invoicedomain.InvoiceDetail, error) {
	return s.mutateDraft(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		position := 0
		for _, existing := range items {
			if existing.SortOrder >= position {
				position = existing.SortOrder + 1
			}
		}
		item, err := s.buildItem(ctx, tx, inv, input, position)
		if err != nil {
			return nil, err
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return nil, err
		}
		return append(items, item), nil
	})
}

func (s *Service) UpdateItem(ctx context.Context, invoiceID, itemID string, req invoicedomain.UpdateItemRequest) (*invoicedomain.InvoiceDetail, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidItemID
	}

	return s.mutateDraft(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		var target *invoicedomain.InvoiceItem
		for _, item := range items {
			if item.ID == id {
				target = item
				break
			}
		}
		if target == nil {
			return nil, invoicedomain.ErrInvoiceItemNotFound
		}

		if req.Description != nil {
			target.Description = strings.TrimSpace(*req.Description)
		}
		if req.Quantity != nil {
			if req.Quantity.IsNegative() {
				return nil, invoicedomain.ErrInvalidQuantity
			}
			target.Quantity = *req.Quantity
		}
		if req.UnitAmount != nil {
			if *req.UnitAmount < 0 {
				return nil, invoicedomain.ErrInvalidUnitAmount
			}
			target.UnitAmount = *req.UnitAmount
		}
		if req.TaxRateID != nil {
			rateID, err := s.requireTaxRate(ctx, tx, inv.OrgID, *req.TaxRateID)
			if err != nil {
				return nil, err
			}
			target.TaxRateID = rateID
		}
		if req.DiscountID != nil {
			discountID, err := s.requireDiscount(ctx, tx, inv.OrgID, *req.DiscountID)
			if err != nil {
				return nil, err
			}
			target.DiscountID = discountID
		}
		if req.SortOrder != nil {
			target.SortOrder = *req.SortOrder
		}
		target.UpdatedAt = s.clock.Now().UTC()
		return items, nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, invoiceID, itemID string) (*invoicedomain.InvoiceDetail, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidItemID
	}

	return s.mutateDraft(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		deleted, err := s.repo.DeleteItem(ctx, tx, inv.OrgID, inv.ID, id)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, invoicedomain.ErrInvoiceItemNotFound
		}
		remaining := make([]*invoicedomain.InvoiceItem, 0, len(items))
		for _, item := range items {
			if item.ID != id {
				remaining = append(remaining, item)
			}
		}
		return remaining, nil
	})
}

// Recalculate re-reads current rates and discounts for a draft.
func (s *Service) Recalculate(ctx context.Context, invoiceID string) (*invoicedomain.InvoiceDetail, error) {
	return s.mutateDraft(ctx, invoiceID, func(_ *gorm.DB, _ *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		return items, nil
	})
}

// AttachDiscount applies a discount code to the whole draft. Unlike
// recompute, every failed check is returned to the caller.
func (s *Service) AttachDiscount(ctx context.Context, invoiceID, code string) (*invoicedomain.InvoiceDetail, error) {
	return s.mutateDraft(ctx, invoiceID, func(tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		if err := s.attachDiscountTx(ctx, tx, inv, items, code); err != nil {
			return nil, err
		}
		return items, nil
	})
}

func (s *Service) DetachDiscount(ctx context.Context, invoiceID string) (*invoicedomain.InvoiceDetail, error) {
	return s.mutateDraft(ctx, invoiceID, func(_ *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) ([]*invoicedomain.InvoiceItem, error) {
		inv.DiscountID = nil
		return items, nil
	})
}

func (s *Service) attachDiscountTx(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem, code string) error {
	discount, err := s.discounts.RequireByCode(ctx, tx, inv.OrgID, code)
	if err != nil {
		return err
	}

	var qualifying int64
	for _, item := range items {
		gross, err := money.LineAmount(item.Quantity, item.UnitAmount)
		if err != nil {
			return invoicedomain.ErrAmountOverflow
		}
		qualifying += gross
	}

	customerRedemptions, err := s.discounts.CustomerRedemptions(ctx, tx, discount.ID, inv.CustomerID)
	if err != nil {
		return err
	}

	eval := discountservice.Evaluate(discountdomain.EvaluateInput{
		Discount:            discount,
		Base:                qualifying,
		Currency:            inv.Currency,
		CustomerRedemptions: customerRedemptions,
		At:                  s.clock.Now().UTC(),
	})
	// An empty draft has nothing to discount yet; that is not a rejection.
	if !eval.Applied && eval.Reason != discountdomain.ReasonNothingToDiscount {
		return apperr.WithMessage(discountdomain.ErrNotApplicable, string(eval.Reason))
	}

	inv.DiscountID = &discount.ID
	return nil
}
