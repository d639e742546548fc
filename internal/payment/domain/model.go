package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Settled reports whether the payment currently counts toward amount_paid.
func (s PaymentStatus) Settled() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

// ProviderManual is used when a payment is recorded by hand.
const ProviderManual = "manual"

type Payment struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID      `json:"org_id" gorm:"not null;index;uniqueIndex:ux_payments_provider_ref,priority:1"`
	InvoiceID         snowflake.ID      `json:"invoice_id" gorm:"not null;index"`
	CustomerID        snowflake.ID      `json:"customer_id" gorm:"not null;index"`
	Amount            int64             `json:"amount" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"type:varchar(3);not null"`
	Status            PaymentStatus     `json:"status" gorm:"type:varchar(32);not null;index"`
	Provider          string            `json:"provider" gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_provider_ref,priority:2"`
	ProviderPaymentID *string           `json:"provider_payment_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_payments_provider_ref,priority:3"`
	RefundedAmount    int64             `json:"refunded_amount" gorm:"not null;default:0"`
	AttemptedAt       time.Time         `json:"attempted_at" gorm:"not null"`
	SucceededAt       *time.Time        `json:"succeeded_at,omitempty"`
	FailedAt          *time.Time        `json:"failed_at,omitempty"`
	FailureReason     *string           `json:"failure_reason,omitempty" gorm:"type:text"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Refundable is what can still be refunded.
func (p Payment) Refundable() int64 {
	if !p.Status.Settled() {
		return 0
	}
	return p.Amount - p.RefundedAmount
}

type RefundStatus string

const (
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

type Refund struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID `json:"org_id" gorm:"not null;index;uniqueIndex:ux_refunds_provider_ref,priority:1"`
	PaymentID        snowflake.ID `json:"payment_id" gorm:"not null;index;uniqueIndex:ux_refunds_provider_ref,priority:2"`
	InvoiceID        snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	Amount           int64        `json:"amount" gorm:"not null"`
	Currency         string       `json:"currency" gorm:"type:varchar(3);not null"`
	Status           RefundStatus `json:"status" gorm:"type:varchar(32);not null"`
	Reason           *string      `json:"reason,omitempty" gorm:"type:text"`
	ProviderRefundID *string      `json:"provider_refund_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_refunds_provider_ref,priority:3"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (Refund) TableName() string { return "refunds" }

// EventRecord deduplicates provider webhook deliveries.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID   `json:"org_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:varchar(64);not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:json;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
)

// PaymentEvent is the canonical provider event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              string
	OrgID             snowflake.ID
	InvoiceID         snowflake.ID
	// Amount is the payment amount, or the cumulative refunded amount for
	// refund events.
	Amount        int64
	Currency      string
	FailureReason string
	OccurredAt    time.Time
	RawPayload    []byte
}
