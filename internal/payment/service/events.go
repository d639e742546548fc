package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ProcessEvent applies a verified provider event. Deliveries are deduplicated
// on (provider, provider_event_id); an event is marked processed only after
// the ledger mutation committed.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	payload := event.RawPayload
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		OrgID:           event.OrgID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	ctx = orgcontext.WithOrgID(ctx, int64(event.OrgID))
	if err := s.applyEvent(ctx, event); err != nil {
		return err
	}
	return s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now().UTC())
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	existing, err := s.repo.FindByProviderRef(ctx, s.db, event.OrgID, event.Provider, event.ProviderPaymentID)
	if err != nil {
		return err
	}

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		if existing != nil {
			if existing.Status == paymentdomain.PaymentStatusPending {
				_, err = s.CompletePayment(ctx, existing.ID.String())
			}
			return err
		}
		_, err = s.RecordPayment(ctx, s.recordRequest(event, paymentdomain.PaymentStatusSucceeded))
		return err

	case paymentdomain.EventTypePaymentFailed:
		if existing != nil {
			if existing.Status == paymentdomain.PaymentStatusPending {
				_, err = s.FailPayment(ctx, existing.ID.String(), event.FailureReason)
			}
			return err
		}
		_, err = s.RecordPayment(ctx, s.recordRequest(event, paymentdomain.PaymentStatusFailed))
		return err

	case paymentdomain.EventTypeRefunded:
		if existing == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		// Providers report the cumulative refunded amount.
		delta := event.Amount - existing.RefundedAmount
		if delta <= 0 {
			s.log.Debug("refund event already reflected",
				zap.String("payment_id", existing.ID.String()),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
		_, err = s.RecordRefund(ctx, paymentdomain.RecordRefundRequest{
			PaymentID:        existing.ID.String(),
			Amount:           delta,
			ProviderRefundID: event.ProviderEventID,
		})
		return err
	}
	return paymentdomain.ErrInvalidEvent
}

func (s *Service) recordRequest(event *paymentdomain.PaymentEvent, status paymentdomain.PaymentStatus) paymentdomain.RecordPaymentRequest {
	occurred := event.OccurredAt
	return paymentdomain.RecordPaymentRequest{
		InvoiceID:         event.InvoiceID.String(),
		Amount:            event.Amount,
		Currency:          event.Currency,
		Status:            status,
		Provider:          event.Provider,
		ProviderPaymentID: event.ProviderPaymentID,
		FailureReason:     event.FailureReason,
		AttemptedAt:       &occurred,
	}
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.ProviderPaymentID = strings.TrimSpace(event.ProviderPaymentID)
	if event.ProviderEventID == "" || event.ProviderPaymentID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OrgID == 0 || event.InvoiceID == 0 {
		return paymentdomain.ErrInvalidEvent
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
	if event.Currency == "" {
		return paymentdomain.ErrInvalidCurrency
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypeRefunded:
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
	case paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
