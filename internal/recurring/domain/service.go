package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

type ItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  int64           `json:"unit_amount"`
	TaxRateID   string          `json:"tax_rate_id,omitempty"`
	DiscountID  string          `json:"discount_id,omitempty"`
	SortOrder   *int            `json:"sort_order,omitempty"`
}

type CreateRequest struct {
	CustomerID        string                `json:"customer_id"`
	Currency          string                `json:"currency"`
	TaxBehavior       taxdomain.TaxBehavior `json:"tax_behavior"`
	NetTermsDays      *int                  `json:"net_terms_days"`
	AutoIssue         bool                  `json:"auto_issue"`
	BillingInterval   BillingInterval       `json:"billing_interval"`
	IntervalCount     int                   `json:"interval_count"`
	StartDate         time.Time             `json:"start_date"`
	EndDate           *time.Time            `json:"end_date,omitempty"`
	BillingDayOfMonth *int                  `json:"billing_day_of_month,omitempty"`
	OccurrencesLimit  *int                  `json:"occurrences_limit,omitempty"`
	Memo              string                `json:"memo"`
	Items             []ItemInput           `json:"items"`
}

type ListRequest struct {
	Status     *Status
	CustomerID *string
}

type Detail struct {
	RecurringInvoice
	Items []RecurringInvoiceItem `json:"items"`
}

// Generation describes one template run.
type Generation struct {
	RecurringInvoiceID snowflake.ID  `json:"recurring_invoice_id"`
	InvoiceID          *snowflake.ID `json:"invoice_id,omitempty"`
	BillingPeriod      time.Time     `json:"billing_period"`
	Issued             bool          `json:"issued"`
	Skipped            bool          `json:"skipped"`
	Status             Status        `json:"status"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Detail, error)
	Get(ctx context.Context, id string) (*Detail, error)
	List(ctx context.Context, req ListRequest) ([]RecurringInvoice, error)
	Pause(ctx context.Context, id string) (*RecurringInvoice, error)
	Resume(ctx context.Context, id string) (*RecurringInvoice, error)
	Cancel(ctx context.Context, id string) (*RecurringInvoice, error)
	ReplaceItems(ctx context.Context, id string, items []ItemInput) (*Detail, error)
}

// Generator materializes invoices from due templates. GenerateDue spans every
// org and is meant for the scheduler; GenerateOne is scoped to the org in ctx.
type Generator interface {
	GenerateDue(ctx context.Context, now time.Time, limit int) ([]Generation, error)
	GenerateOne(ctx context.Context, id string, now time.Time) (*Generation, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *RecurringInvoice) error
	Save(ctx context.Context, db *gorm.DB, r *RecurringInvoice) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*RecurringInvoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*RecurringInvoice, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status *Status, customerID *snowflake.ID) ([]*RecurringInvoice, error)
	// ClaimDue locks up to limit active templates due at now, leaving out
	// exclude. Rows held by another transaction are skipped where the
	// dialect supports it.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int, exclude []snowflake.ID) ([]*RecurringInvoice, error)

	ListItems(ctx context.Context, db *gorm.DB, orgID, recurringID snowflake.ID) ([]*RecurringInvoiceItem, error)
	ReplaceItems(ctx context.Context, db *gorm.DB, orgID, recurringID snowflake.ID, items []*RecurringInvoiceItem) error
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidID           = apperr.Validation("invalid_recurring_invoice_id", "")
	ErrInvalidCustomer     = apperr.Validation("invalid_customer_id", "")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "")
	ErrInvalidTaxBehavior  = apperr.Validation("invalid_tax_behavior", "")
	ErrInvalidNetTerms     = apperr.Validation("invalid_net_terms", "")
	ErrInvalidInterval     = apperr.Validation("invalid_billing_interval", "")
	ErrInvalidCount        = apperr.Validation("invalid_interval_count", "interval count must be at least 1")
	ErrInvalidStartDate    = apperr.Validation("invalid_start_date", "")
	ErrInvalidEndDate      = apperr.Validation("invalid_end_date", "end date must not precede the start date")
	ErrInvalidDayOfMonth   = apperr.Validation("invalid_billing_day_of_month", "billing day must be between 1 and 31")
	ErrInvalidLimit        = apperr.Validation("invalid_occurrences_limit", "")
	ErrInvalidQuantity     = apperr.Validation("invalid_quantity", "quantity must not be negative")
	ErrInvalidUnitAmount   = apperr.Validation("invalid_unit_amount", "unit amount must not be negative")
	ErrInvalidReference    = apperr.Validation("invalid_reference", "")
	ErrNoItems             = apperr.Validation("recurring_invoice_has_no_items", "")

	ErrInvalidTransition = apperr.PreconditionFailed("invalid_recurring_transition", "")
	ErrNotDue            = apperr.PreconditionFailed("recurring_invoice_not_due", "")
	ErrNotFound          = apperr.NotFound("recurring_invoice_not_found", "")
)
