package rendering

import (
	"strings"
	"time"

	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/money"
)

func invoiceDocument(inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem, customer *customerdomain.Customer) Document {
	doc := Document{
		Title:     "Invoice",
		Number:    deref(inv.Number),
		IssueDate: formatDate(inv.IssuedAt),
		DueDate:   formatDate(inv.DueAt),
		Memo:      inv.Memo,
	}
	billTo(&doc, customer)

	for _, item := range items {
		doc.Lines = append(doc.Lines, DocumentLine{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   money.Format(item.UnitAmount, inv.Currency),
			Discount:    optionalAmount(item.DiscountAmount, inv.Currency),
			Tax:         optionalAmount(item.TaxAmount, inv.Currency),
			Amount:      money.Format(item.TotalAmount, inv.Currency),
		})
	}

	doc.Totals = append(doc.Totals, TotalLine{Label: "Subtotal", Value: money.Format(inv.Subtotal, inv.Currency)})
	if inv.DiscountTotal > 0 {
		doc.Totals = append(doc.Totals, TotalLine{Label: "Discount", Value: "-" + money.Format(inv.DiscountTotal, inv.Currency)})
	}
	label := "Tax"
	if inv.TaxBehavior == taxdomain.TaxBehaviorInclusive {
		label = "Tax (included)"
	}
	doc.Totals = append(doc.Totals,
		TotalLine{Label: label, Value: money.Format(inv.TaxTotal, inv.Currency)},
		TotalLine{Label: "Total", Value: money.Format(inv.Total, inv.Currency), Strong: true},
	)
	if inv.AmountPaid > 0 {
		doc.Totals = append(doc.Totals, TotalLine{Label: "Amount paid", Value: money.Format(inv.AmountPaid, inv.Currency)})
	}
	if inv.CreditApplied > 0 {
		doc.Totals = append(doc.Totals, TotalLine{Label: "Credit applied", Value: money.Format(inv.CreditApplied, inv.Currency)})
	}
	doc.Totals = append(doc.Totals, TotalLine{Label: "Amount due", Value: money.Format(inv.CollectibleAmount(), inv.Currency), Strong: true})
	return doc
}

func creditNoteDocument(note *creditnotedomain.CreditNote, items []*creditnotedomain.CreditNoteItem, customer *customerdomain.Customer, inv *invoicedomain.Invoice) Document {
	doc := Document{
		Title:     "Credit note",
		Number:    deref(note.Number),
		IssueDate: formatDate(note.IssuedAt),
		Memo:      deref(note.Reason),
	}
	if inv != nil && inv.Number != nil {
		doc.Reference = "Credits invoice " + *inv.Number
	}
	billTo(&doc, customer)

	for _, item := range items {
		doc.Lines = append(doc.Lines, DocumentLine{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   money.Format(item.UnitAmount, note.Currency),
			Tax:         optionalAmount(item.TaxAmount, note.Currency),
			Amount:      money.Format(item.TotalAmount, note.Currency),
		})
	}
	doc.Totals = []TotalLine{
		{Label: "Subtotal", Value: money.Format(note.Subtotal, note.Currency)},
		{Label: "Tax", Value: money.Format(note.TaxTotal, note.Currency)},
		{Label: "Total credit", Value: money.Format(note.Total, note.Currency), Strong: true},
	}
	return doc
}

func billTo(doc *Document, customer *customerdomain.Customer) {
	if customer == nil {
		return
	}
	doc.BillToName = customer.Name
	doc.BillToAddress = strings.TrimSpace(customer.BillingAddress)
	doc.BillToEmail = customer.Email
	doc.BillToTaxID = customer.TaxID
}

func optionalAmount(amount int64, currency string) string {
	if amount == 0 {
		return "-"
	}
	return money.Format(amount, currency)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
