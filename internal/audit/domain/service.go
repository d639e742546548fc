package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
)

const (
	ActionInvoiceIssued              = "invoice.issued"
	ActionInvoiceVoided              = "invoice.voided"
	ActionInvoiceWrittenOff          = "invoice.written_off"
	ActionInvoiceArchived            = "invoice.archived"
	ActionPaymentRecorded            = "payment.recorded"
	ActionRefundRecorded             = "refund.recorded"
	ActionCreditNoteIssued           = "credit_note.issued"
	ActionCreditNoteApplied          = "credit_note.applied"
	ActionCreditNoteReversed         = "credit_note.application_reversed"
	ActionCreditNoteVoided           = "credit_note.voided"
	ActionRecurringGenerated         = "recurring.generated"
	ActionRecurringCompleted         = "recurring.completed"
	ActionDiscountRedemptionReversed = "discount.redemption_reversed"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidPageToken    = apperr.Validation("invalid_page_token", "")
	ErrInvalidTimeRange    = apperr.Validation("invalid_time_range", "")
	ErrInvalidAction       = apperr.Validation("invalid_action", "")
)
