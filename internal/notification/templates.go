package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type invoiceView struct {
	CustomerName string
	Number       string
	Total        string
	AmountDue    string
	DueDate      string
	Memo         string
}

func newInvoiceView(inv invoicedomain.Invoice, customer *customerdomain.Customer) invoiceView {
	view := invoiceView{
		CustomerName: customer.Name,
		Number:       inv.ID.String(),
		Total:        money.Format(inv.Total, inv.Currency),
		AmountDue:    money.Format(inv.CollectibleAmount(), inv.Currency),
		Memo:         inv.Memo,
	}
	if inv.Number != nil {
		view.Number = *inv.Number
	}
	if inv.DueAt != nil {
		view.DueDate = inv.DueAt.Format("January 2, 2006")
	}
	return view
}

func buildMessage(kind invoicedomain.ReminderKind, view invoiceView, to string) (Message, error) {
	var name, subject string
	switch kind {
	case invoicedomain.ReminderKindIssued:
		name = "invoice_issued.html"
		subject = fmt.Sprintf("Invoice %s: %s due", view.Number, view.AmountDue)
	case invoicedomain.ReminderKindPastDue:
		name = "invoice_past_due.html"
		subject = fmt.Sprintf("Reminder: invoice %s is past due", view.Number)
	default:
		return Message{}, fmt.Errorf("unknown reminder kind %q", kind)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, view); err != nil {
		return Message{}, fmt.Errorf("failed to execute template: %w", err)
	}
	return Message{
		To:       []string{to},
		Subject:  subject,
		HTMLBody: body.String(),
	}, nil
}
