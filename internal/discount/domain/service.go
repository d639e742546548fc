package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Discount, error)
	Get(ctx context.Context, id string) (*Discount, error)
	GetByCode(ctx context.Context, code string) (*Discount, error)
	List(ctx context.Context, req ListRequest) ([]Discount, error)
	Deactivate(ctx context.Context, id string) (*Discount, error)
	// Validate checks an explicit application and fails with a reason.
	Validate(ctx context.Context, req ValidateRequest) (*Evaluation, error)
	ReverseRedemption(ctx context.Context, discountID, invoiceID string) error
}

// Redeemer is the in-transaction surface the invoice ledger uses.
type Redeemer interface {
	// Resolve is soft: a missing discount is (nil, nil).
	Resolve(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*Discount, error)
	RequireByCode(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string) (*Discount, error)
	CustomerRedemptions(ctx context.Context, tx *gorm.DB, discountID, customerID snowflake.ID) (int64, error)
	Redeem(ctx context.Context, tx *gorm.DB, in RedeemInput) (*DiscountRedemption, error)
	Reverse(ctx context.Context, tx *gorm.DB, orgID, discountID, invoiceID snowflake.ID) error
	MarkInvoiceVoided(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID, at time.Time) error
}

type RedeemInput struct {
	OrgID      snowflake.ID
	DiscountID snowflake.ID
	InvoiceID  snowflake.ID
	CustomerID snowflake.ID
	Amount     int64
}

type CreateRequest struct {
	Code                      string     `json:"code"`
	Name                      string     `json:"name"`
	Type                      Type       `json:"type"`
	Value                     int64      `json:"value"`
	Currency                  string     `json:"currency"`
	ValidFrom                 *time.Time `json:"valid_from"`
	ValidTo                   *time.Time `json:"valid_to"`
	MaxRedemptions            *int64     `json:"max_redemptions"`
	MaxRedemptionsPerCustomer *int64     `json:"max_redemptions_per_customer"`
	MinimumAmount             int64      `json:"minimum_amount"`
}

type ListRequest struct {
	Code    string
	Active  *bool
	SortBy  string
	OrderBy string
}

type ValidateRequest struct {
	Code       string `json:"code"`
	CustomerID string `json:"customer_id"`
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidID           = apperr.Validation("invalid_id", "")
	ErrInvalidCode         = apperr.Validation("invalid_discount_code", "")
	ErrInvalidType         = apperr.Validation("invalid_discount_type", "")
	ErrInvalidValue        = apperr.Validation("invalid_discount_value", "")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "")
	ErrInvalidWindow       = apperr.Validation("invalid_validity_window", "valid_to must be after valid_from")
	ErrInvalidLimit        = apperr.Validation("invalid_redemption_limit", "")
	ErrNotApplicable       = apperr.Validation("discount_not_applicable", "")
	ErrDuplicateCode       = apperr.Conflict("discount_code_taken", "")
	ErrRedemptionLimit     = apperr.Conflict("discount_redemption_limit_reached", "")
	ErrNotFound            = apperr.NotFound("discount_not_found", "")
	ErrRedemptionNotFound  = apperr.NotFound("discount_redemption_not_found", "")
)
