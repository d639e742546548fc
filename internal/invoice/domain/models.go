// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusIssued        InvoiceStatus = "issued"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPastDue       InvoiceStatus = "past_due"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusWrittenOff    InvoiceStatus = "written_off"
	InvoiceStatusArchived      InvoiceStatus = "archived"
)

// Open statuses accept payments and credit applications.
func (s InvoiceStatus) Open() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusPartiallyPaid, InvoiceStatusPastDue:
		return true
	}
	return false
}

// Closed statuses keep their status on balance corrections.
func (s InvoiceStatus) Closed() bool {
	switch s {
	case InvoiceStatusVoid, InvoiceStatusWrittenOff, InvoiceStatusArchived:
		return true
	}
	return false
}

type TaxBehavior = taxdomain.TaxBehavior

// Invoice is the ledger aggregate root. Totals are derived from items by the
// aggregator; amount_paid and credit_applied by the payment and credit note ledgers.
type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_invoices_org_number,priority:1" json:"organization_id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`

	Number       *string `gorm:"type:varchar(64);uniqueIndex:ux_invoices_org_number,priority:2" json:"number,omitempty"`
	SequenceYear *int    `json:"sequence_year,omitempty"`
	SequenceNo   *int64  `json:"sequence_no,omitempty"`

	Status      InvoiceStatus `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	Currency    string        `gorm:"type:varchar(3);not null" json:"currency"`
	TaxBehavior TaxBehavior   `gorm:"type:varchar(16);not null;default:'exclusive'" json:"tax_behavior"`

	Subtotal      int64 `gorm:"not null;default:0" json:"subtotal"`
	DiscountTotal int64 `gorm:"not null;default:0" json:"discount_total"`
	TaxTotal      int64 `gorm:"not null;default:0" json:"tax_total"`
	Total         int64 `gorm:"not null;default:0" json:"total"`
	AmountPaid    int64 `gorm:"not null;default:0" json:"amount_paid"`
	CreditApplied int64 `gorm:"not null;default:0" json:"credit_applied"`
	AmountDue     int64 `gorm:"not null;default:0" json:"amount_due"`

	NetTermsDays int           `gorm:"not null;default:0" json:"net_terms_days"`
	DiscountID   *snowflake.ID `gorm:"index" json:"discount_id,omitempty"`
	Memo         string        `gorm:"type:text" json:"memo,omitempty"`

	RecurringInvoiceID *snowflake.ID `gorm:"index;uniqueIndex:ux_invoices_recurring_period,priority:1" json:"recurring_invoice_id,omitempty"`
	BillingPeriod      *time.Time    `gorm:"uniqueIndex:ux_invoices_recurring_period,priority:2" json:"billing_period,omitempty"`

	PDFPath *string `gorm:"column:pdf_path;type:text" json:"pdf_path,omitempty"`

	IssuedAt     *time.Time        `json:"issued_at,omitempty"`
	DueAt        *time.Time        `gorm:"index" json:"due_at,omitempty"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
	VoidedAt     *time.Time        `json:"voided_at,omitempty"`
	WrittenOffAt *time.Time        `json:"written_off_at,omitempty"`
	ArchivedAt   *time.Time        `json:"archived_at,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Balance returns max(0, total - amount_paid - credit_applied).
func (i *Invoice) Balance() int64 {
	return money.Clamp0(i.Total - i.AmountPaid - i.CreditApplied)
}

// CollectibleAmount is the balance still expected from the customer.
// Void and written off invoices keep amount_due for history but collect nothing.
func (i *Invoice) CollectibleAmount() int64 {
	if i.Status == InvoiceStatusVoid || i.Status == InvoiceStatusWrittenOff {
		return 0
	}
	return i.AmountDue
}

// InvoiceItem represents a line on an invoice. Amount is the pre-discount
// line net of tax, so TotalAmount == Amount - DiscountAmount + TaxAmount.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index" json:"organization_id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"quantity"`
	UnitAmount  int64           `gorm:"not null" json:"unit_amount"`
	TaxRateID   *snowflake.ID   `json:"tax_rate_id,omitempty"`
	DiscountID  *snowflake.ID   `json:"discount_id,omitempty"`

	Amount         int64 `gorm:"not null;default:0" json:"amount"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discount_amount"`
	TaxAmount      int64 `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount    int64 `gorm:"not null;default:0" json:"total_amount"`
	SortOrder      int   `gorm:"not null;default:0" json:"sort_order"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

type ReminderKind string

const (
	ReminderKindIssued  ReminderKind = "issued"
	ReminderKindPastDue ReminderKind = "past_due"
)

// InvoiceReminder records a notification attempt. Delivery outcome is written
// back after the fact and never affects financial state.
type InvoiceReminder struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"organization_id"`
	InvoiceID  snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Kind       ReminderKind `gorm:"type:varchar(32);not null" json:"kind"`
	Recipient  string       `gorm:"type:text" json:"recipient,omitempty"`
	EmailSent  bool         `gorm:"not null;default:false" json:"email_sent"`
	EmailError *string      `gorm:"type:text" json:"email_error,omitempty"`
	SentAt     *time.Time   `json:"sent_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoiceReminder) TableName() string { return "invoice_reminders" }
