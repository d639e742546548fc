package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	Name           string            `gorm:"not null" json:"name"`
	Email          string            `gorm:"not null" json:"email"`
	BillingAddress string            `gorm:"type:text" json:"billing_address,omitempty"`
	TaxID          string            `gorm:"column:tax_id" json:"tax_id,omitempty"`
	Currency       string            `gorm:"column:currency" json:"currency,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

// Profile is the read-only view of a customer the ledger consumes.
type Profile struct {
	ID             snowflake.ID
	Name           string
	Email          string
	BillingAddress string
	TaxID          string
	Currency       string
}
