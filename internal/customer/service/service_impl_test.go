package service_test

import (
	"context"
	"testing"

	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCustomer(t *testing.T) {
	env := testutil.New(t)

	created, err := env.Customers.Create(env.Ctx(), customerdomain.CreateCustomerRequest{
		Name:     "  Initech ",
		Email:    "ap@initech.test",
		Currency: "eur",
		TaxID:    "DE123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Initech", created.Name)
	assert.Equal(t, "EUR", created.Currency)

	got, err := env.Customers.GetByID(env.Ctx(), customerdomain.GetCustomerRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "DE123", got.TaxID)
}

func TestCreateCustomerValidation(t *testing.T) {
	env := testutil.New(t)

	_, err := env.Customers.Create(env.Ctx(), customerdomain.CreateCustomerRequest{Email: "a@b.test"})
	assert.ErrorIs(t, err, customerdomain.ErrInvalidName)

	_, err = env.Customers.Create(env.Ctx(), customerdomain.CreateCustomerRequest{Name: "A", Email: "nope"})
	assert.ErrorIs(t, err, customerdomain.ErrInvalidEmail)

	_, err = env.Customers.Create(env.Ctx(), customerdomain.CreateCustomerRequest{Name: "A", Email: "a@b.test", Currency: "XXXX"})
	assert.ErrorIs(t, err, customerdomain.ErrInvalidCurrency)

	_, err = env.Customers.Create(context.Background(), customerdomain.CreateCustomerRequest{Name: "A", Email: "a@b.test"})
	assert.ErrorIs(t, err, customerdomain.ErrInvalidOrganization)
}

func TestCustomersAreOrgScoped(t *testing.T) {
	env := testutil.New(t)
	created := env.Customer(t, "USD")

	_, err := env.Customers.GetByID(env.Ctx(), customerdomain.GetCustomerRequest{ID: "99"})
	assert.ErrorIs(t, err, customerdomain.ErrNotFound)

	otherOrg := orgcontext.WithOrgID(context.Background(), int64(env.OrgID)+1)
	_, err = env.Customers.GetByID(otherOrg, customerdomain.GetCustomerRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, customerdomain.ErrNotFound)
}

func TestListCustomers(t *testing.T) {
	env := testutil.New(t)
	env.Customer(t, "USD")
	env.Customer(t, "EUR")

	resp, err := env.Customers.List(env.Ctx(), customerdomain.ListCustomerRequest{Currency: "eur"})
	require.NoError(t, err)
	require.Len(t, resp.Customers, 1)
	assert.Equal(t, "EUR", resp.Customers[0].Currency)
}
