package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	engine *gin.Engine
	orgID  string
}

func newTestAPI(t *testing.T) (*apiClient, *testutil.Env) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := testutil.New(t)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	srv := NewServer(Params{
		Engine:        engine,
		Clock:         env.Clock,
		CustomerSvc:   env.Customers,
		TaxSvc:        env.Taxes,
		DiscountSvc:   env.Discounts,
		InvoiceSvc:    env.Invoices,
		PaymentSvc:    env.Payments,
		WebhookSvc:    env.Webhooks,
		CreditNoteSvc: env.CreditNotes,
		RecurringSvc:  env.Recurring,
		AuditSvc:      env.Audit,
	})
	srv.RegisterRoutes()
	return &apiClient{t: t, engine: engine, orgID: env.OrgID.String()}, env
}

func (a *apiClient) do(method, path string, body any) (int, map[string]any) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.orgID != "" {
		req.Header.Set(HeaderOrg, a.orgID)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

func errorCode(resp map[string]any) string {
	payload, _ := resp["error"].(map[string]any)
	code, _ := payload["code"].(string)
	return code
}

func TestRequestsNeedOrganization(t *testing.T) {
	api, _ := newTestAPI(t)
	api.orgID = ""

	status, resp := api.do(http.MethodGet, "/v1/invoices", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_organization", errorCode(resp))
}

func TestInvoiceIssueAndPayOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)

	status, resp := api.do(http.MethodPost, "/v1/customers", map[string]any{
		"name":     "Acme Ltd",
		"email":    "billing@acme.test",
		"currency": "USD",
	})
	require.Equal(t, http.StatusCreated, status, resp)
	customerID := data(t, resp)["id"]

	status, resp = api.do(http.MethodPost, "/v1/invoices", map[string]any{
		"customer_id": fmt.Sprint(customerID),
		"items": []map[string]any{
			{"description": "Consulting", "quantity": "2", "unit_amount": 1500},
		},
	})
	require.Equal(t, http.StatusCreated, status, resp)
	inv := data(t, resp)
	invoiceID := fmt.Sprint(inv["id"])
	assert.Equal(t, "draft", inv["status"])
	assert.EqualValues(t, 3000, inv["total"])

	status, resp = api.do(http.MethodPost, "/v1/invoices/"+invoiceID+"/issue", nil)
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, "issued", data(t, resp)["status"])
	assert.NotEmpty(t, data(t, resp)["number"])

	status, resp = api.do(http.MethodPost, "/v1/payments", map[string]any{
		"invoice_id": invoiceID,
		"amount":     3000,
		"currency":   "USD",
	})
	require.Equal(t, http.StatusCreated, status, resp)

	status, resp = api.do(http.MethodGet, "/v1/invoices/"+invoiceID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), data(t, resp)["status"])
	assert.EqualValues(t, 0, data(t, resp)["amount_due"])

	status, resp = api.do(http.MethodGet, "/v1/invoices/"+invoiceID+"/payments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["data"], 1)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	api, env := newTestAPI(t)
	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Hosting", "1", 1000))

	status, resp := api.do(http.MethodPost, "/v1/invoices/"+inv.ID.String()+"/items", map[string]any{
		"description": "Late addition",
		"quantity":    "1",
		"unit_amount": 500,
	})
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "invoice_not_draft", errorCode(resp))

	status, resp = api.do(http.MethodGet, "/v1/invoices/123456789", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "invoice_not_found", errorCode(resp))

	status, resp = api.do(http.MethodPost, "/v1/invoices", map[string]any{"items": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", errorCode(resp))
}

func TestIssueVoidedDraftOverHTTP(t *testing.T) {
	api, env := newTestAPI(t)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []invoicedomain.ItemInput{testutil.Item("Setup", "1", 1000)},
	})
	require.NoError(t, err)

	status, resp := api.do(http.MethodPost, "/v1/invoices/"+draft.ID.String()+"/void", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, status, resp)

	status, resp = api.do(http.MethodPost, "/v1/invoices/"+draft.ID.String()+"/issue", nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "invalid_status_transition", errorCode(resp))
}

func TestReverseDiscountRedemptionOverHTTP(t *testing.T) {
	api, env := newTestAPI(t)
	discount, err := env.Discounts.Create(env.Ctx(), discountdomain.CreateRequest{
		Code:  "LAUNCH",
		Type:  discountdomain.TypePercent,
		Value: 1000,
	})
	require.NoError(t, err)
	customer := env.Customer(t, "USD")
	draft, err := env.Invoices.Create(env.Ctx(), invoicedomain.CreateInvoiceRequest{
		CustomerID:   customer.ID.String(),
		DiscountCode: "LAUNCH",
		Items:        []invoicedomain.ItemInput{testutil.Item("Plan", "1", 5000)},
	})
	require.NoError(t, err)
	_, err = env.Invoices.Issue(env.Ctx(), draft.ID.String())
	require.NoError(t, err)

	path := "/v1/discounts/" + discount.ID.String() + "/redemptions/" + draft.ID.String() + "/reverse"
	status, resp := api.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, status, resp)
	assert.EqualValues(t, 0, data(t, resp)["current_redemptions"])

	other := env.IssuedInvoice(t, customer.ID, testutil.Item("Plan", "1", 5000))
	status, resp = api.do(http.MethodPost, "/v1/discounts/"+discount.ID.String()+"/redemptions/"+other.ID.String()+"/reverse", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "discount_redemption_not_found", errorCode(resp))
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("invalid_amount", "amount must be positive"), http.StatusBadRequest, "invalid_amount"},
		{fmt.Errorf("apply: %w", apperr.Conflict("application_already_reversed", "")), http.StatusConflict, "application_already_reversed"},
		{apperr.NotFound("payment_not_found", ""), http.StatusNotFound, "payment_not_found"},
		{newValidationError("due_to", "invalid_due_to", "invalid due_to"), http.StatusBadRequest, "invalid_due_to"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, payload.Code)
	}

	_, payload := mapError(errors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", payload.Message)

	_, payload = mapError(newValidationError("due_to", "invalid_due_to", "invalid due_to"))
	assert.Equal(t, "due_to", payload.Field)
}
