package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypePercent Type = "percent"
	TypeFixed   Type = "fixed"
)

// Discount is an org-scoped code. For TypePercent, Value is basis points
// (1000 = 10%). For TypeFixed, Value is minor units of Currency.
type Discount struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_discounts_org_code,priority:1" json:"organization_id"`

	Code     string `gorm:"type:varchar(64);not null;uniqueIndex:ux_discounts_org_code,priority:2" json:"code"`
	Name     string `gorm:"type:text" json:"name,omitempty"`
	Type     Type   `gorm:"type:varchar(16);not null" json:"type"`
	Value    int64  `gorm:"not null" json:"value"`
	Currency string `gorm:"type:varchar(3)" json:"currency,omitempty"`

	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	Active    bool       `gorm:"not null;default:true" json:"active"`

	MaxRedemptions            *int64 `json:"max_redemptions,omitempty"`
	CurrentRedemptions        int64  `gorm:"not null;default:0" json:"current_redemptions"`
	MaxRedemptionsPerCustomer *int64 `json:"max_redemptions_per_customer,omitempty"`
	MinimumAmount             int64  `gorm:"not null;default:0" json:"minimum_amount"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Discount) TableName() string { return "discounts" }

// DiscountRedemption records that a discount was applied to an issued
// invoice. At most one row exists per (discount, invoice).
type DiscountRedemption struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"organization_id"`
	DiscountID snowflake.ID `gorm:"not null;uniqueIndex:ux_discount_redemptions_invoice,priority:1" json:"discount_id"`
	InvoiceID  snowflake.ID `gorm:"not null;uniqueIndex:ux_discount_redemptions_invoice,priority:2" json:"invoice_id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Amount     int64        `gorm:"not null" json:"amount"`

	RedeemedAt      time.Time  `gorm:"not null" json:"redeemed_at"`
	ReversedAt      *time.Time `json:"reversed_at,omitempty"`
	InvoiceVoidedAt *time.Time `json:"invoice_voided_at,omitempty"`
}

func (DiscountRedemption) TableName() string { return "discount_redemptions" }

// Reason explains why a discount contributed nothing.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotYetValid       Reason = "not_yet_valid"
	ReasonExpired           Reason = "expired"
	ReasonMaxRedemptions    Reason = "max_redemptions_reached"
	ReasonCustomerLimit     Reason = "customer_limit_reached"
	ReasonMinimumAmount     Reason = "minimum_amount_not_met"
	ReasonCurrencyMismatch  Reason = "currency_mismatch"
	ReasonNothingToDiscount Reason = "nothing_to_discount"
)

type EvaluateInput struct {
	Discount *Discount
	// Base is the line amount the discount reduces.
	Base int64
	// QualifyingAmount is compared against MinimumAmount; defaults to Base.
	QualifyingAmount int64
	Currency         string
	// CustomerRedemptions is the customer's live redemption count for this discount.
	CustomerRedemptions int64
	At                  time.Time
}

type Evaluation struct {
	Amount  int64
	Applied bool
	Reason  Reason
}
