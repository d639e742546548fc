package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

type RecordPaymentRequest struct {
	InvoiceID         string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	Provider          string
	ProviderPaymentID string
	FailureReason     string
	AttemptedAt       *time.Time
}

type RecordRefundRequest struct {
	PaymentID        string
	Amount           int64
	Status           RefundStatus
	Reason           string
	ProviderRefundID string
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*Payment, error)
	CompletePayment(ctx context.Context, id string) (*Payment, error)
	FailPayment(ctx context.Context, id string, reason string) (*Payment, error)
	RecordRefund(ctx context.Context, req RecordRefundRequest) (*Refund, error)
	Get(ctx context.Context, id string) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
	ListRefunds(ctx context.Context, paymentID string) ([]Refund, error)
}

// WebhookService ingests provider callbacks and routes them to Service.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindPaymentForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindByProviderRef(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider, providerPaymentID string) (*Payment, error)
	SavePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]*Payment, error)

	InsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) error
	FindRefundByProviderRef(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID, providerRefundID string) (*Refund, error)
	ListRefunds(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) ([]*Refund, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidInvoice      = apperr.Validation("invalid_invoice_id", "")
	ErrInvalidPaymentID    = apperr.Validation("invalid_payment_id", "")
	ErrInvalidAmount       = apperr.Validation("invalid_amount", "amount must be positive")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "")
	ErrInvalidStatus       = apperr.Validation("invalid_payment_status", "")
	ErrInvalidProvider     = apperr.Validation("invalid_provider", "")
	ErrCurrencyMismatch    = apperr.Validation("currency_mismatch", "payment currency must match the invoice currency")
	ErrRefundExceedsAmount = apperr.Validation("refund_exceeds_payment", "refund exceeds the unrefunded remainder of the payment")
	ErrInvalidEvent        = apperr.Validation("invalid_event", "")
	ErrInvalidPayload      = apperr.Validation("invalid_payload", "")
	ErrInvalidConfig       = apperr.Validation("invalid_provider_config", "")
	ErrInvalidSignature    = apperr.Validation("invalid_signature", "")

	ErrPaymentNotPending    = apperr.PreconditionFailed("payment_not_pending", "")
	ErrPaymentNotRefundable = apperr.PreconditionFailed("payment_not_refundable", "only settled payments can be refunded")

	ErrProviderReferenceConflict = apperr.Conflict("provider_payment_id_conflict", "provider payment id already recorded for a different payment")
	ErrEventAlreadyProcessed     = apperr.Conflict("event_already_processed", "")

	ErrPaymentNotFound  = apperr.NotFound("payment_not_found", "")
	ErrProviderNotFound = apperr.NotFound("payment_provider_not_found", "")

	// ErrEventIgnored marks provider events the ledger does not act on.
	ErrEventIgnored = apperr.Validation("event_ignored", "")
)
