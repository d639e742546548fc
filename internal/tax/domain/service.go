package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

// Resolver loads rates for calculation. Resolve is soft: a missing rate is
// (nil, nil) so recompute degrades to no tax. Require is used when a user
// attaches a rate explicitly.
type Resolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*TaxRate, error)
	Require(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*TaxRate, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*TaxRate, error)
	Get(ctx context.Context, id string) (*TaxRate, error)
	List(ctx context.Context, req ListRequest) ([]TaxRate, error)
	Update(ctx context.Context, req UpdateRequest) (*TaxRate, error)
	Deactivate(ctx context.Context, id string) (*TaxRate, error)
}

type ListRequest struct {
	Name    string
	Code    string
	Active  *bool
	SortBy  string
	OrderBy string
}

type CreateRequest struct {
	Code                  string     `json:"code"`
	Name                  string     `json:"name"`
	PercentageBasisPoints int64      `json:"percentage_basis_points"`
	Inclusive             bool       `json:"inclusive"`
	Active                *bool      `json:"active"`
	ValidFrom             *time.Time `json:"valid_from"`
	ValidTo               *time.Time `json:"valid_to"`
	Description           *string    `json:"description"`
}

type UpdateRequest struct {
	ID                    string     `json:"id"`
	Name                  *string    `json:"name,omitempty"`
	PercentageBasisPoints *int64     `json:"percentage_basis_points,omitempty"`
	Inclusive             *bool      `json:"inclusive,omitempty"`
	ValidFrom             *time.Time `json:"valid_from,omitempty"`
	ValidTo               *time.Time `json:"valid_to,omitempty"`
	Description           *string    `json:"description,omitempty"`
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidName         = apperr.Validation("invalid_name", "")
	ErrInvalidID           = apperr.Validation("invalid_id", "")
	ErrInvalidCode         = apperr.Validation("invalid_tax_code", "")
	ErrInvalidRate         = apperr.Validation("invalid_tax_rate", "basis points must be between 0 and 100000")
	ErrInvalidWindow       = apperr.Validation("invalid_validity_window", "valid_to must be after valid_from")
	ErrDuplicateCode       = apperr.Conflict("tax_code_taken", "")
	ErrNotFound            = apperr.NotFound("tax_rate_not_found", "")
)
