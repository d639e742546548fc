package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordRefund refunds part or all of a settled payment. A succeeded refund
// reopens the invoice balance; a failed one is kept for history only.
func (s *Service) RecordRefund(ctx context.Context, req paymentdomain.RecordRefundRequest) (_ *paymentdomain.Refund, err error) {
	ctx, span := tracing.Start(ctx, "payment.RecordRefund",
		attribute.String("payment_id", req.PaymentID),
	)
	defer func() { tracing.End(span, err) }()

	orgID, paymentID, err := s.parseScope(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	status := req.Status
	if status == "" {
		status = paymentdomain.RefundStatusSucceeded
	}
	if status != paymentdomain.RefundStatusSucceeded && status != paymentdomain.RefundStatusFailed {
		return nil, paymentdomain.ErrInvalidStatus
	}
	providerRef := strings.TrimSpace(req.ProviderRefundID)

	var (
		refund   *paymentdomain.Refund
		payment  *paymentdomain.Payment
		inv      *invoicedomain.Invoice
		existing bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err = s.lockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		if providerRef != "" {
			found, err := s.repo.FindRefundByProviderRef(ctx, tx, orgID, paymentID, providerRef)
			if err != nil {
				return err
			}
			if found != nil {
				refund = found
				existing = true
				return nil
			}
		}
		if !payment.Status.Settled() {
			return apperr.WithMessage(paymentdomain.ErrPaymentNotRefundable, "payment is "+string(payment.Status))
		}
		if req.Amount > payment.Refundable() {
			return paymentdomain.ErrRefundExceedsAmount
		}

		now := s.clock.Now().UTC()
		refund = &paymentdomain.Refund{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			PaymentID: payment.ID,
			InvoiceID: payment.InvoiceID,
			Amount:    req.Amount,
			Currency:  payment.Currency,
			Status:    status,
			CreatedAt: now,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			refund.Reason = &reason
		}
		if providerRef != "" {
			refund.ProviderRefundID = &providerRef
		}

		if status == paymentdomain.RefundStatusSucceeded {
			inv, err = s.ledger.LockForUpdate(ctx, tx, orgID, payment.InvoiceID)
			if err != nil {
				return err
			}
			if _, err := s.ledger.ApplySettlement(ctx, tx, inv, invoicedomain.Settlement{PaidDelta: -req.Amount}); err != nil {
				return err
			}

			payment.RefundedAmount += req.Amount
			if payment.RefundedAmount == payment.Amount {
				payment.Status = paymentdomain.PaymentStatusRefunded
			} else {
				payment.Status = paymentdomain.PaymentStatusPartiallyRefunded
			}
			payment.UpdatedAt = now
			if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
				return err
			}
		}

		return s.repo.InsertRefund(ctx, tx, refund)
	})
	if err != nil {
		return nil, s.classify(err)
	}
	if existing {
		return refund, nil
	}

	s.metrics.RecordRefund(ctx, payment.Provider)
	fields := []zap.Field{
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(refund.Status)),
		zap.Int64("amount", refund.Amount),
	}
	if inv != nil {
		fields = append(fields,
			zap.String("invoice_status", string(inv.Status)),
			zap.Int64("amount_due", inv.AmountDue),
		)
	}
	s.log.Info("refund recorded", fields...)

	metadata := map[string]any{
		"payment_id":     payment.ID.String(),
		"invoice_id":     payment.InvoiceID.String(),
		"amount":         refund.Amount,
		"currency":       refund.Currency,
		"status":         string(refund.Status),
		"payment_status": string(payment.Status),
	}
	if refund.Reason != nil {
		metadata["reason"] = *refund.Reason
	}
	s.audit(ctx, orgID, auditdomain.ActionRefundRecorded, "refund", refund.ID, metadata)
	return refund, nil
}

func (s *Service) ListRefunds(ctx context.Context, paymentID string) ([]paymentdomain.Refund, error) {
	orgID, id, err := s.parseScope(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListRefunds(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	refunds := make([]paymentdomain.Refund, 0, len(items))
	for _, item := range items {
		refunds = append(refunds, *item)
	}
	return refunds, nil
}
