package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
)

type ListCustomerRequest struct {
	PageToken   string
	PageSize    int32
	Name        string
	Email       string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerFilter struct {
	Name        string
	Email       string
	Currency    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name           string
	Email          string
	BillingAddress string
	TaxID          string
	Currency       string
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
}

// Directory resolves customer references for the ledger. It never returns
// mutable fields for storage; callers snapshot only the currency.
type Directory interface {
	Lookup(ctx context.Context, orgID, customerID snowflake.ID) (Profile, error)
}

var (
	ErrInvalidOrganization = apperr.Validation("invalid_organization", "")
	ErrInvalidName         = apperr.Validation("invalid_name", "")
	ErrInvalidEmail        = apperr.Validation("invalid_email", "")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "")
	ErrInvalidID           = apperr.Validation("invalid_id", "")
	ErrNotFound            = apperr.NotFound("customer_not_found", "")
)
