package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusIssued  Status = "issued"
	StatusApplied Status = "applied"
	StatusVoid    Status = "void"
)

type CreditNote struct {
	ID              snowflake.ID          `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID          `json:"org_id" gorm:"not null;index;uniqueIndex:ux_credit_notes_org_number,priority:1"`
	CustomerID      snowflake.ID          `json:"customer_id" gorm:"not null;index"`
	InvoiceID       snowflake.ID          `json:"invoice_id" gorm:"not null;index"`
	Number          *string               `json:"number,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_credit_notes_org_number,priority:2"`
	SequenceYear    *int                  `json:"sequence_year,omitempty"`
	SequenceNo      *int64                `json:"sequence_no,omitempty"`
	Status          Status                `json:"status" gorm:"type:varchar(32);not null;index"`
	Currency        string                `json:"currency" gorm:"type:varchar(3);not null"`
	TaxBehavior     taxdomain.TaxBehavior `json:"tax_behavior" gorm:"type:varchar(16);not null"`
	Subtotal        int64                 `json:"subtotal" gorm:"not null;default:0"`
	TaxTotal        int64                 `json:"tax_total" gorm:"not null;default:0"`
	Total           int64                 `json:"total" gorm:"not null;default:0"`
	AmountRemaining int64                 `json:"amount_remaining" gorm:"not null;default:0"`
	Reason          *string               `json:"reason,omitempty" gorm:"type:text"`
	PDFPath         *string               `json:"pdf_path,omitempty" gorm:"column:pdf_path;type:text"`
	IssuedAt        *time.Time            `json:"issued_at,omitempty"`
	VoidedAt        *time.Time            `json:"voided_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time             `json:"updated_at" gorm:"not null"`
}

func (CreditNote) TableName() string { return "credit_notes" }

// Applied is the net amount currently applied to invoices.
func (c CreditNote) Applied() int64 {
	return c.Total - c.AmountRemaining
}

type CreditNoteItem struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID    `json:"org_id" gorm:"not null;index"`
	CreditNoteID snowflake.ID    `json:"credit_note_id" gorm:"not null;index"`
	Description  string          `json:"description" gorm:"type:text;not null"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:numeric(20,6);not null"`
	UnitAmount   int64           `json:"unit_amount" gorm:"not null"`
	TaxRateID    *snowflake.ID   `json:"tax_rate_id,omitempty"`
	Amount       int64           `json:"amount" gorm:"not null;default:0"`
	TaxAmount    int64           `json:"tax_amount" gorm:"not null;default:0"`
	TotalAmount  int64           `json:"total_amount" gorm:"not null;default:0"`
	SortOrder    int             `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (CreditNoteItem) TableName() string { return "credit_note_items" }

// CreditNoteApplication moves credit onto an invoice. A reversal is recorded
// as a negative application pointing at the one it undoes.
type CreditNoteApplication struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID  `json:"org_id" gorm:"not null;index"`
	CreditNoteID  snowflake.ID  `json:"credit_note_id" gorm:"not null;index"`
	InvoiceID     snowflake.ID  `json:"invoice_id" gorm:"not null;index"`
	AmountApplied int64         `json:"amount_applied" gorm:"not null"`
	ReversesID    *snowflake.ID `json:"reverses_id,omitempty" gorm:"uniqueIndex:ux_credit_note_applications_reverses"`
	AppliedAt     time.Time     `json:"applied_at" gorm:"not null"`
}

func (CreditNoteApplication) TableName() string { return "credit_note_applications" }

func (a CreditNoteApplication) IsReversal() bool {
	return a.ReversesID != nil
}
