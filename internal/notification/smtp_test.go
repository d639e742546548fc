package notification

import (
	"context"
	"net/smtp"
	"testing"

	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(SMTPConfig{Host: "mail.example.test", Port: 2525, From: "billing@example.test"})
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:       []string{"ap@acme.test"},
		Subject:  "Invoice 2026-0001",
		HTMLBody: "<p>hello</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.example.test:2525", gotAddr)
	assert.Equal(t, "billing@example.test", gotFrom)
	assert.Equal(t, []string{"ap@acme.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Invoice 2026-0001\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "<p>hello</p>")
}

func TestSMTPProviderRequiresRecipients(t *testing.T) {
	p := NewSMTP(SMTPConfig{Host: "localhost", Port: 25})
	assert.Error(t, p.Send(context.Background(), Message{Subject: "x"}))
}

func TestInvoiceViewCollectsNothingOnceWrittenOff(t *testing.T) {
	number := "2026-000004-0a1b2c3d"
	inv := invoicedomain.Invoice{
		Number:    &number,
		Status:    invoicedomain.InvoiceStatusWrittenOff,
		Currency:  "USD",
		Total:     9900,
		AmountDue: 9900,
	}
	view := newInvoiceView(inv, &customerdomain.Customer{Name: "Acme Ltd"})
	assert.Equal(t, "99.00 USD", view.Total)
	assert.Equal(t, "0.00 USD", view.AmountDue)

	inv.Status = invoicedomain.InvoiceStatusPastDue
	view = newInvoiceView(inv, &customerdomain.Customer{Name: "Acme Ltd"})
	assert.Equal(t, "99.00 USD", view.AmountDue)
}
