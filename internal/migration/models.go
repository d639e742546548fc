package migration

import (
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"gorm.io/gorm"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&auditdomain.AuditLog{},
		&sequencedomain.DocumentSequence{},
		&taxdomain.TaxRate{},
		&discountdomain.Discount{},
		&discountdomain.DiscountRedemption{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceReminder{},
		&paymentdomain.Payment{},
		&paymentdomain.Refund{},
		&paymentdomain.EventRecord{},
		&creditnotedomain.CreditNote{},
		&creditnotedomain.CreditNoteItem{},
		&creditnotedomain.CreditNoteApplication{},
		&recurringdomain.RecurringInvoice{},
		&recurringdomain.RecurringInvoiceItem{},
	}
}

// AutoMigrate builds the schema from the gorm models. It backs sqlite and
// mysql deployments and tests; postgres uses the versioned SQL files.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
