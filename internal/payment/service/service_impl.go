package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/observability/tracing"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   paymentdomain.Repository
	Ledger invoicedomain.Ledger

	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   paymentdomain.Repository
	ledger invoicedomain.Ledger

	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("payment.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,

		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

// RecordPayment creates a payment and, when it succeeded, settles it against
// the invoice in the same transaction. A repeated provider_payment_id returns
// the payment recorded the first time.
func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (_ *paymentdomain.Payment, err error) {
	ctx, span := tracing.Start(ctx, "payment.RecordPayment",
		attribute.String("invoice_id", req.InvoiceID),
	)
	defer func() { tracing.End(span, err) }()

	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return nil, paymentdomain.ErrInvalidInvoice
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, paymentdomain.ErrInvalidCurrency
	}
	status := req.Status
	if status == "" {
		status = paymentdomain.PaymentStatusSucceeded
	}
	switch status {
	case paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusSucceeded, paymentdomain.PaymentStatusFailed:
	default:
		return nil, paymentdomain.ErrInvalidStatus
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = paymentdomain.ProviderManual
	}
	providerRef := strings.TrimSpace(req.ProviderPaymentID)

	if providerRef != "" {
		existing, err := s.repo.FindByProviderRef(ctx, s.db, orgID, provider, providerRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.matchExisting(existing, invoiceID, req.Amount)
		}
	}

	now := s.clock.Now().UTC()
	attemptedAt := now
	if req.AttemptedAt != nil && !req.AttemptedAt.IsZero() {
		attemptedAt = req.AttemptedAt.UTC()
	}

	payment := &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		InvoiceID:   invoiceID,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      status,
		Provider:    provider,
		AttemptedAt: attemptedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if providerRef != "" {
		payment.ProviderPaymentID = &providerRef
	}
	switch status {
	case paymentdomain.PaymentStatusSucceeded:
		payment.SucceededAt = &now
	case paymentdomain.PaymentStatusFailed:
		payment.FailedAt = &now
		if reason := strings.TrimSpace(req.FailureReason); reason != "" {
			payment.FailureReason = &reason
		}
	}

	var inv *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.ledger.LockForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Currency != currency {
			return paymentdomain.ErrCurrencyMismatch
		}
		payment.CustomerID = inv.CustomerID

		switch status {
		case paymentdomain.PaymentStatusSucceeded:
			if _, err := s.ledger.ApplySettlement(ctx, tx, inv, invoicedomain.Settlement{PaidDelta: req.Amount}); err != nil {
				return err
			}
		case paymentdomain.PaymentStatusPending:
			if !inv.Status.Open() {
				return invoicedomain.ErrInvoiceNotOpen
			}
		}

		return s.repo.InsertPayment(ctx, tx, payment)
	})
	if err != nil {
		if providerRef != "" && db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByProviderRef(ctx, s.db, orgID, provider, providerRef)
			if findErr == nil && existing != nil {
				return s.matchExisting(existing, invoiceID, req.Amount)
			}
		}
		return nil, s.classify(err)
	}

	s.afterPayment(ctx, payment, inv)
	return payment, nil
}

func (s *Service) matchExisting(existing *paymentdomain.Payment, invoiceID snowflake.ID, amount int64) (*paymentdomain.Payment, error) {
	if existing.InvoiceID != invoiceID || existing.Amount != amount {
		return nil, paymentdomain.ErrProviderReferenceConflict
	}
	return existing, nil
}

// CompletePayment settles a pending payment. Completing an already succeeded
// payment is a no-op.
func (s *Service) CompletePayment(ctx context.Context, id string) (*paymentdomain.Payment, error) {
	orgID, paymentID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		payment *paymentdomain.Payment
		inv     *invoicedomain.Invoice
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err = s.lockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		switch payment.Status {
		case paymentdomain.PaymentStatusPending:
		case paymentdomain.PaymentStatusSucceeded:
			return nil
		default:
			return apperr.WithMessage(paymentdomain.ErrPaymentNotPending, "payment is "+string(payment.Status))
		}

		inv, err = s.ledger.LockForUpdate(ctx, tx, orgID, payment.InvoiceID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ApplySettlement(ctx, tx, inv, invoicedomain.Settlement{PaidDelta: payment.Amount}); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		payment.Status = paymentdomain.PaymentStatusSucceeded
		payment.SucceededAt = &now
		payment.UpdatedAt = now
		changed = true
		return s.repo.SavePayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, s.classify(err)
	}
	if changed {
		s.afterPayment(ctx, payment, inv)
	}
	return payment, nil
}

// FailPayment marks a pending payment failed. The invoice is untouched.
func (s *Service) FailPayment(ctx context.Context, id string, reason string) (*paymentdomain.Payment, error) {
	orgID, paymentID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}

	var payment *paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err = s.lockPayment(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		switch payment.Status {
		case paymentdomain.PaymentStatusPending:
		case paymentdomain.PaymentStatusFailed:
			return nil
		default:
			return apperr.WithMessage(paymentdomain.ErrPaymentNotPending, "payment is "+string(payment.Status))
		}

		now := s.clock.Now().UTC()
		payment.Status = paymentdomain.PaymentStatusFailed
		payment.FailedAt = &now
		payment.UpdatedAt = now
		if reason = strings.TrimSpace(reason); reason != "" {
			payment.FailureReason = &reason
		}
		return s.repo.SavePayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, s.classify(err)
	}
	s.metrics.RecordPayment(ctx, payment.Provider, string(payment.Status))
	return payment, nil
}

func (s *Service) Get(ctx context.Context, id string) (*paymentdomain.Payment, error) {
	orgID, paymentID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindPayment(ctx, s.db, orgID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]paymentdomain.Payment, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, paymentdomain.ErrInvalidInvoice
	}
	items, err := s.repo.ListByInvoice(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return payments, nil
}

func (s *Service) lockPayment(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindPaymentForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) afterPayment(ctx context.Context, payment *paymentdomain.Payment, inv *invoicedomain.Invoice) {
	s.metrics.RecordPayment(ctx, payment.Provider, string(payment.Status))

	fields := []zap.Field{
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("status", string(payment.Status)),
		zap.Int64("amount", payment.Amount),
		zap.String("currency", payment.Currency),
	}
	if inv != nil {
		fields = append(fields,
			zap.String("invoice_status", string(inv.Status)),
			zap.Int64("amount_due", inv.AmountDue),
		)
	}
	s.log.Info("payment recorded", fields...)

	metadata := map[string]any{
		"invoice_id": payment.InvoiceID.String(),
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"status":     string(payment.Status),
		"provider":   payment.Provider,
	}
	if payment.ProviderPaymentID != nil {
		metadata["provider_payment_id"] = *payment.ProviderPaymentID
	}
	if inv != nil {
		metadata["invoice_status"] = string(inv.Status)
		metadata["amount_due"] = inv.AmountDue
	}
	s.audit(ctx, payment.OrgID, auditdomain.ActionPaymentRecorded, "payment", payment.ID, metadata)
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
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if db.IsDuplicateKeyErr(err) || db.IsRetryableErr(err) {
		return apperr.Wrap(apperr.KindConflict, "payment_conflict", err)
	}
	return err
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, paymentdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) parseScope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || paymentID == 0 {
		return 0, 0, paymentdomain.ErrInvalidPaymentID
	}
	return orgID, paymentID, nil
}
