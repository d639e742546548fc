package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	Save(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	ListPastDueCandidates(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Invoice, error)

	ListItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]*InvoiceItem, error)
	InsertItem(ctx context.Context, db *gorm.DB, item *InvoiceItem) error
	SaveItems(ctx context.Context, db *gorm.DB, items []*InvoiceItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, orgID, invoiceID, itemID snowflake.ID) (bool, error)

	InsertReminder(ctx context.Context, db *gorm.DB, reminder *InvoiceReminder) error
	UpdateReminderOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, sentAt *time.Time, emailErr *string) error
}
