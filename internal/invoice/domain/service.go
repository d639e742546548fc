package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
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

type CreateInvoiceRequest struct {
	CustomerID   string      `json:"customer_id"`
	Currency     string      `json:"currency"`
	TaxBehavior  TaxBehavior `json:"tax_behavior"`
	NetTermsDays *int        `json:"net_terms_days"`
	DiscountCode string      `json:"discount_code"`
	Memo         string      `json:"memo"`
	Items        []ItemInput `json:"items"`
}

type UpdateItemRequest struct {
	Description *string          `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitAmount  *int64           `json:"unit_amount,omitempty"`
	TaxRateID   *string          `json:"tax_rate_id,omitempty"`
	DiscountID  *string          `json:"discount_id,omitempty"`
	SortOrder   *int             `json:"sort_order,omitempty"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status     *InvoiceStatus
	CustomerID *string
	DueFrom    *time.Time
	DueTo      *time.Time
	SortBy     string
	OrderBy    string
}

type ListInvoiceFilter struct {
	Status     *InvoiceStatus
	CustomerID *snowflake.ID
	DueFrom    *time.Time
	DueTo      *time.Time
	SortBy     string
	OrderBy    string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type InvoiceDetail struct {
	Invoice
	Items []InvoiceItem `json:"items"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceDetail, error)
	Get(ctx context.Context, id string) (*InvoiceDetail, error)
	GetByNumber(ctx context.Context, number string) (*InvoiceDetail, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)

	AddItem(ctx context.Context, invoiceID string, item ItemInput) (*InvoiceDetail, error)
	UpdateItem(ctx context.Context, invoiceID, itemID string, req UpdateItemRequest) (*InvoiceDetail, error)
	RemoveItem(ctx context.Context, invoiceID, itemID string) (*InvoiceDetail, error)
	Recalculate(ctx context.Context, invoiceID string) (*InvoiceDetail, error)
	AttachDiscount(ctx context.Context, invoiceID, code string) (*InvoiceDetail, error)
	DetachDiscount(ctx context.Context, invoiceID string) (*InvoiceDetail, error)

	Issue(ctx context.Context, invoiceID string) (*InvoiceDetail, error)
	Void(ctx context.Context, invoiceID, reason string) (*Invoice, error)
	WriteOff(ctx context.Context, invoiceID, reason string) (*Invoice, error)
	Archive(ctx context.Context, invoiceID string) (*Invoice, error)
	DeleteDraft(ctx context.Context, invoiceID string) error

	// MarkPastDue moves overdue issued and partially paid invoices of every
	// org to past_due. It returns how many changed.
	MarkPastDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// Settlement is a signed change to what an invoice has received.
type Settlement struct {
	PaidDelta   int64
	CreditDelta int64
}

// DraftItem is an item copied from a template. References are soft: a
// missing rate or discount degrades to none.
type DraftItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitAmount  int64
	TaxRateID   *snowflake.ID
	DiscountID  *snowflake.ID
	SortOrder   int
}

type DraftInput struct {
	OrgID              snowflake.ID
	CustomerID         snowflake.ID
	Currency           string
	TaxBehavior        TaxBehavior
	NetTermsDays       int
	Memo               string
	RecurringInvoiceID *snowflake.ID
	BillingPeriod      *time.Time
	Items              []DraftItem
}

// Ledger is used by payment, credit note and recurring code inside their own
// transactions. Callers must hold the invoice row via LockForUpdate before
// ApplySettlement.
type Ledger interface {
	LockForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	ApplySettlement(ctx context.Context, tx *gorm.DB, inv *Invoice, delta Settlement) (from InvoiceStatus, err error)
	CreateDraftTx(ctx context.Context, tx *gorm.DB, in DraftInput) (*Invoice, error)
	// IssueTx issues a locked draft. issued is false when inv was already issued.
	IssueTx(ctx context.Context, tx *gorm.DB, inv *Invoice) (issued bool, err error)
	// AfterIssue runs the post-commit side effects of an issuance.
	AfterIssue(ctx context.Context, inv *Invoice)
}

// Notifier receives invoice events after commit. Implementations must not block.
type Notifier interface {
	InvoiceIssued(ctx context.Context, inv Invoice)
	InvoicePastDue(ctx context.Context, inv Invoice)
}

// DocumentRenderer produces the PDF for an issued invoice in the background.
type DocumentRenderer interface {
	RenderInvoiceAsync(ctx context.Context, orgID, invoiceID snowflake.ID)
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidInvoiceID    = apperr.Validation("invalid_invoice_id", "")
	ErrInvalidItemID       = apperr.Validation("invalid_item_id", "")
	ErrInvalidCustomer     = apperr.Validation("invalid_customer_id", "")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "")
	ErrInvalidTaxBehavior  = apperr.Validation("invalid_tax_behavior", "")
	ErrInvalidNetTerms     = apperr.Validation("invalid_net_terms", "")
	ErrInvalidQuantity     = apperr.Validation("invalid_quantity", "quantity must not be negative")
	ErrInvalidUnitAmount   = apperr.Validation("invalid_unit_amount", "unit amount must not be negative")
	ErrInvalidReference    = apperr.Validation("invalid_reference", "")
	ErrAmountOverflow      = apperr.Validation("amount_overflow", "")
	ErrNoItems             = apperr.Validation("invoice_has_no_items", "an invoice needs at least one item to be issued")
	ErrOverpayment         = apperr.Validation("amount_exceeds_balance", "")
	ErrNegativeBalance     = apperr.Validation("negative_settlement", "")
	ErrInvalidStatus       = apperr.Validation("invalid_status", "")

	ErrInvoiceNotDraft     = apperr.PreconditionFailed("invoice_not_draft", "items can only change while the invoice is a draft")
	ErrInvoiceNotOpen      = apperr.PreconditionFailed("invoice_not_open", "")
	ErrInvalidTransition   = apperr.PreconditionFailed("invalid_status_transition", "")
	ErrInvoiceNotDeletable = apperr.PreconditionFailed("invoice_not_deletable", "only drafts can be deleted")
	ErrInvoiceNotFound     = apperr.NotFound("invoice_not_found", "")
	ErrInvoiceItemNotFound = apperr.NotFound("invoice_item_not_found", "")
)
