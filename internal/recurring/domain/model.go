package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
)

type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

func (i BillingInterval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal statuses never generate again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type RecurringInvoice struct {
	ID                snowflake.ID          `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID          `json:"org_id" gorm:"not null;index"`
	CustomerID        snowflake.ID          `json:"customer_id" gorm:"not null;index"`
	Currency          string                `json:"currency" gorm:"type:varchar(3);not null"`
	TaxBehavior       taxdomain.TaxBehavior `json:"tax_behavior" gorm:"type:varchar(16);not null"`
	NetTermsDays      int                   `json:"net_terms_days" gorm:"not null;default:0"`
	AutoIssue         bool                  `json:"auto_issue" gorm:"not null;default:false"`
	BillingInterval   BillingInterval       `json:"billing_interval" gorm:"type:varchar(16);not null"`
	IntervalCount     int                   `json:"interval_count" gorm:"not null;default:1"`
	StartDate         time.Time             `json:"start_date" gorm:"not null"`
	EndDate           *time.Time            `json:"end_date,omitempty"`
	NextBillingDate   time.Time             `json:"next_billing_date" gorm:"not null;index:ix_recurring_due,priority:2"`
	BillingDayOfMonth *int                  `json:"billing_day_of_month,omitempty"`
	OccurrencesLimit  *int                  `json:"occurrences_limit,omitempty"`
	OccurrencesCount  int                   `json:"occurrences_count" gorm:"not null;default:0"`
	Status            Status                `json:"status" gorm:"type:varchar(16);not null;index:ix_recurring_due,priority:1"`
	LastGeneratedAt   *time.Time            `json:"last_generated_at,omitempty"`
	LastBilledPeriod  *time.Time            `json:"last_billed_period,omitempty"`
	Memo              string                `json:"memo,omitempty" gorm:"type:text"`
	CreatedAt         time.Time             `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time             `json:"updated_at" gorm:"not null"`
}

func (RecurringInvoice) TableName() string { return "recurring_invoices" }

// Due reports whether the template should bill at now.
func (r RecurringInvoice) Due(now time.Time) bool {
	return r.Status == StatusActive && !r.NextBillingDate.After(now)
}

// AlreadyBilled reports whether the current period has been generated.
func (r RecurringInvoice) AlreadyBilled() bool {
	return r.LastBilledPeriod != nil && r.LastBilledPeriod.Equal(r.NextBillingDate)
}

type RecurringInvoiceItem struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID    `json:"org_id" gorm:"not null;index"`
	RecurringInvoiceID snowflake.ID    `json:"recurring_invoice_id" gorm:"not null;index"`
	Description        string          `json:"description" gorm:"type:text;not null"`
	Quantity           decimal.Decimal `json:"quantity" gorm:"type:numeric(20,6);not null"`
	UnitAmount         int64           `json:"unit_amount" gorm:"not null"`
	TaxRateID          *snowflake.ID   `json:"tax_rate_id,omitempty"`
	DiscountID         *snowflake.ID   `json:"discount_id,omitempty"`
	SortOrder          int             `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
}

func (RecurringInvoiceItem) TableName() string { return "recurring_invoice_items" }
