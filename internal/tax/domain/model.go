package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TaxBehavior states whether document prices already contain tax.
type TaxBehavior string

const (
	TaxBehaviorExclusive TaxBehavior = "exclusive" // tax added on top
	TaxBehaviorInclusive TaxBehavior = "inclusive" // price contains tax
)

func (b TaxBehavior) Valid() bool {
	return b == TaxBehaviorExclusive || b == TaxBehaviorInclusive
}

// MaxBasisPoints caps a rate at 1000%.
const MaxBasisPoints int64 = 100000

// TaxRate is an org-scoped flat rate. Items reference it by ID; the computed
// tax is frozen on the item at issuance so later edits never reach issued invoices.
type TaxRate struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;index;uniqueIndex:ux_tax_rates_org_code,priority:1" json:"org_id"`

	Name string `gorm:"type:text;not null" json:"name"`
	Code string `gorm:"type:varchar(64);not null;uniqueIndex:ux_tax_rates_org_code,priority:2" json:"code"`

	// PercentageBasisPoints: 2000 = 20.00%.
	PercentageBasisPoints int64 `gorm:"column:percentage_basis_points;not null" json:"percentage_basis_points"`
	Inclusive             bool  `gorm:"not null;default:false" json:"inclusive"`
	Active                bool  `gorm:"not null;default:true" json:"active"`

	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	Description *string `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

// EffectiveAt reports whether the rate applies at t. The window is [valid_from, valid_to).
func (t *TaxRate) EffectiveAt(at time.Time) bool {
	if t == nil || !t.Active {
		return false
	}
	if t.ValidFrom != nil && at.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidTo != nil && !at.Before(*t.ValidTo) {
		return false
	}
	return true
}

func (t *TaxRate) Validate() error {
	if t.Code == "" {
		return ErrInvalidCode
	}
	if t.Name == "" {
		return ErrInvalidName
	}
	if t.PercentageBasisPoints < 0 || t.PercentageBasisPoints > MaxBasisPoints {
		return ErrInvalidRate
	}
	if t.ValidFrom != nil && t.ValidTo != nil && !t.ValidTo.After(*t.ValidFrom) {
		return ErrInvalidWindow
	}
	return nil
}
