package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/ledgerbook/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	paymentservice "github.com/smallbiznis/ledgerbook/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
	}
}

// IngestWebhook verifies a provider delivery and applies it to the ledger.
// Ignored event types and redeliveries of processed events succeed silently
// so the provider stops retrying.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	err = s.paymentSvc.ProcessEvent(ctx, event)
	if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		s.log.Debug("duplicate webhook delivery",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}
	if err != nil {
		s.log.Warn("webhook processing failed",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}
	return err
}
