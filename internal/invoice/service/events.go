package service

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"go.uber.org/zap"
)

// AfterIssue runs once the issuing transaction has committed. Nothing here
// can undo the issuance.
func (s *Service) AfterIssue(ctx context.Context, inv *invoicedomain.Invoice) {
	if inv == nil {
		return
	}
	s.metrics.RecordInvoiceIssued(ctx, inv.Currency)
	s.metrics.RecordInvoiceTransition(ctx, string(invoicedomain.InvoiceStatusDraft), string(inv.Status))
	s.emitAudit(ctx, auditdomain.ActionInvoiceIssued, inv, nil)

	s.log.Info("invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", deref(inv.Number)),
		zap.Int64("total", inv.Total),
		zap.String("currency", inv.Currency),
	)

	if s.notifier != nil {
		s.notifier.InvoiceIssued(ctx, *inv)
	}
	if s.renderer != nil {
		s.renderer.RenderInvoiceAsync(ctx, inv.OrgID, inv.ID)
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, inv *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || inv == nil {
		return
	}
	metadata := map[string]any{
		"customer_id": inv.CustomerID.String(),
		"currency":    inv.Currency,
		"status":      string(inv.Status),
		"total":       inv.Total,
		"amount_due":  inv.AmountDue,
	}
	if inv.Number != nil {
		metadata["number"] = *inv.Number
	}
	if inv.DueAt != nil {
		metadata["due_at"] = inv.DueAt.Format(time.RFC3339)
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := inv.ID.String()
	orgID := inv.OrgID
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
