package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

type ItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitAmount  int64
	TaxRateID   string
	SortOrder   *int
}

type CreateRequest struct {
	InvoiceID string
	Reason    string
	Items     []ItemInput
}

type ApplyRequest struct {
	CreditNoteID string
	// InvoiceID defaults to the invoice the credit note was raised against.
	InvoiceID string
	Amount    int64
}

type Detail struct {
	CreditNote
	Items []CreditNoteItem `json:"items"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Detail, error)
	AddItem(ctx context.Context, creditNoteID string, input ItemInput) (*Detail, error)
	RemoveItem(ctx context.Context, creditNoteID, itemID string) (*Detail, error)
	Issue(ctx context.Context, creditNoteID string) (*Detail, error)
	Apply(ctx context.Context, req ApplyRequest) (*CreditNoteApplication, error)
	ReverseApplication(ctx context.Context, applicationID string) (*CreditNoteApplication, error)
	Void(ctx context.Context, creditNoteID string) (*CreditNote, error)
	Get(ctx context.Context, creditNoteID string) (*Detail, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]CreditNote, error)
	ListApplications(ctx context.Context, creditNoteID string) ([]CreditNoteApplication, error)
}

// DocumentRenderer produces the PDF for an issued credit note in the background.
type DocumentRenderer interface {
	RenderCreditNoteAsync(ctx context.Context, orgID, creditNoteID snowflake.ID)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, note *CreditNote) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CreditNote, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CreditNote, error)
	Save(ctx context.Context, db *gorm.DB, note *CreditNote) error
	ListByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]*CreditNote, error)
	// SumIssuedForInvoice totals issued credit raised against an invoice.
	SumIssuedForInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error)

	ListItems(ctx context.Context, db *gorm.DB, orgID, creditNoteID snowflake.ID) ([]*CreditNoteItem, error)
	InsertItem(ctx context.Context, db *gorm.DB, item *CreditNoteItem) error
	SaveItems(ctx context.Context, db *gorm.DB, items []*CreditNoteItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, orgID, creditNoteID, itemID snowflake.ID) (bool, error)

	InsertApplication(ctx context.Context, db *gorm.DB, app *CreditNoteApplication) error
	FindApplication(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CreditNoteApplication, error)
	FindReversal(ctx context.Context, db *gorm.DB, orgID, applicationID snowflake.ID) (*CreditNoteApplication, error)
	ListApplications(ctx context.Context, db *gorm.DB, orgID, creditNoteID snowflake.ID) ([]*CreditNoteApplication, error)
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidID           = apperr.Validation("invalid_credit_note_id", "")
	ErrInvalidInvoiceID    = apperr.Validation("invalid_invoice_id", "")
	ErrInvalidItemID       = apperr.Validation("invalid_item_id", "")
	ErrInvalidQuantity     = apperr.Validation("invalid_quantity", "quantity must not be negative")
	ErrInvalidUnitAmount   = apperr.Validation("invalid_unit_amount", "unit amount must not be negative")
	ErrInvalidAmount       = apperr.Validation("invalid_amount", "amount must be positive")
	ErrAmountOverflow      = apperr.Validation("amount_overflow", "")
	ErrNoItems             = apperr.Validation("credit_note_has_no_items", "a credit note needs at least one item to be issued")
	ErrZeroTotal           = apperr.Validation("credit_note_zero_total", "a credit note must credit a positive amount")
	ErrExceedsInvoiceTotal = apperr.Validation("credit_exceeds_invoice_total", "issued credit may not exceed the invoice total")
	ErrExceedsRemaining    = apperr.Validation("credit_exceeds_remaining", "amount exceeds the credit note's remaining balance")
	ErrCustomerMismatch    = apperr.Validation("customer_mismatch", "credit can only be applied to invoices of the same customer")
	ErrCurrencyMismatch    = apperr.Validation("currency_mismatch", "credit note and invoice currencies differ")

	ErrNotDraft            = apperr.PreconditionFailed("credit_note_not_draft", "items can only change while the credit note is a draft")
	ErrNotApplicable       = apperr.PreconditionFailed("credit_note_not_applicable", "")
	ErrInvoiceNotIssued    = apperr.PreconditionFailed("invoice_not_issued", "credit notes can only be raised against issued invoices")
	ErrHasApplications     = apperr.PreconditionFailed("credit_note_has_applications", "reverse every application before voiding")
	ErrNotReversible       = apperr.PreconditionFailed("application_not_reversible", "")
	ErrAlreadyReversed     = apperr.Conflict("application_already_reversed", "")
	ErrNotFound            = apperr.NotFound("credit_note_not_found", "")
	ErrItemNotFound        = apperr.NotFound("credit_note_item_not_found", "")
	ErrApplicationNotFound = apperr.NotFound("credit_note_application_not_found", "")
)
