package service

import (
	"time"

	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
)

// deriveOpenStatus is the status of an issued invoice after its balance changed.
func deriveOpenStatus(inv *invoicedomain.Invoice, now time.Time) invoicedomain.InvoiceStatus {
	switch {
	case inv.AmountDue == 0:
		return invoicedomain.InvoiceStatusPaid
	case inv.AmountPaid+inv.CreditApplied > 0:
		return invoicedomain.InvoiceStatusPartiallyPaid
	case inv.DueAt != nil && now.After(*inv.DueAt):
		return invoicedomain.InvoiceStatusPastDue
	default:
		return invoicedomain.InvoiceStatusIssued
	}
}

var transitions = map[invoicedomain.InvoiceStatus][]invoicedomain.InvoiceStatus{
	invoicedomain.InvoiceStatusVoid: {
		invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusPartiallyPaid,
	},
	invoicedomain.InvoiceStatusWrittenOff: {
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusPartiallyPaid,
		invoicedomain.InvoiceStatusPastDue,
	},
	invoicedomain.InvoiceStatusArchived: {
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusVoid,
		invoicedomain.InvoiceStatusWrittenOff,
	},
	invoicedomain.InvoiceStatusPastDue: {
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusPartiallyPaid,
	},
}

func canTransition(from, to invoicedomain.InvoiceStatus) bool {
	for _, allowed := range transitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}
