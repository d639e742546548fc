package rendering

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePut(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	path, err := store.Put(context.Background(), "42/invoices/inv-1.pdf", []byte("%PDF-1.3"), contentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "42", "invoices", "inv-1.pdf"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(body))
}

func TestLocalStorageStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	path, err := store.Put(context.Background(), "../../escape.pdf", []byte("x"), contentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.pdf"), path)
}

func TestDocumentKey(t *testing.T) {
	org := snowflake.ID(7)
	assert.Equal(t, "7/invoices/2026-000012-ab.pdf", documentKey(org, "invoices", "2026-000012-AB"))
	assert.Equal(t, "7/credit-notes/cn-2026-1.pdf", documentKey(org, "credit-notes", "CN/2026/1"))
	assert.Equal(t, "7/invoices/document.pdf", documentKey(org, "invoices", "  "))
}

func TestRenderPDF(t *testing.T) {
	body, err := RenderPDF(Document{
		Title:     "Invoice",
		Number:    "2026-000001",
		IssueDate: "March 1, 2026",
		Lines: []DocumentLine{
			{Description: "Consulting", Quantity: "2", UnitPrice: "125.00 USD", Amount: "250.00 USD"},
		},
		Totals: []TotalLine{{Label: "Total", Value: "250.00 USD", Strong: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestClosedInvoiceShowsNothingDue(t *testing.T) {
	number := "2026-000003-0a1b2c3d"
	customer := &customerdomain.Customer{Name: "Acme Ltd"}
	for _, status := range []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusVoid, invoicedomain.InvoiceStatusWrittenOff} {
		inv := &invoicedomain.Invoice{
			Number:    &number,
			Status:    status,
			Currency:  "USD",
			Total:     4200,
			AmountDue: 4200,
		}
		doc := invoiceDocument(inv, nil, customer)
		last := doc.Totals[len(doc.Totals)-1]
		assert.Equal(t, "Amount due", last.Label, status)
		assert.Equal(t, "0.00 USD", last.Value, status)
	}

	open := &invoicedomain.Invoice{Number: &number, Status: invoicedomain.InvoiceStatusIssued, Currency: "USD", Total: 4200, AmountDue: 4200}
	doc := invoiceDocument(open, nil, customer)
	assert.Equal(t, "42.00 USD", doc.Totals[len(doc.Totals)-1].Value)
}
