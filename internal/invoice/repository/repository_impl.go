package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/pkg/db/option"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return r.first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*domain.Invoice, error) {
	return r.first(db.WithContext(ctx).Where("org_id = ? AND number = ?", orgID, number))
}

func (r *repo) first(stmt *gorm.DB) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := stmt.First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ?", orgID)
	if filter.Status != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "status", Value: *filter.Status}).Apply(stmt)
	}
	if filter.CustomerID != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "customer_id", Value: *filter.CustomerID}).Apply(stmt)
	}
	if filter.DueFrom != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "due_at", Operator: option.GTE, Value: *filter.DueFrom}).Apply(stmt)
	}
	if filter.DueTo != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "due_at", Operator: option.LTE, Value: *filter.DueTo}).Apply(stmt)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	stmt = option.WithSortBy(option.QuerySortBy{
		SortBy:  filter.SortBy,
		OrderBy: filter.OrderBy,
		Allow:   map[string]bool{"created_at": true},
	}).Apply(stmt)
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Save(invoice).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	if err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, id).
		Delete(&domain.InvoiceItem{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).
		Where("org_id = ? AND id = ? AND status = ?", orgID, id, domain.InvoiceStatusDraft).
		Delete(&domain.Invoice{}).Error
}

func (r *repo) ListPastDueCandidates(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Where("status IN ? AND due_at IS NOT NULL AND due_at < ?",
			[]domain.InvoiceStatus{domain.InvoiceStatusIssued, domain.InvoiceStatusPartiallyPaid}, now).
		Order("due_at asc, id asc")
	stmt = option.WithLimit(limit).Apply(stmt)
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]*domain.InvoiceItem, error) {
	var items []*domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) SaveItems(ctx context.Context, db *gorm.DB, items []*domain.InvoiceItem) error {
	for _, item := range items {
		if err := db.WithContext(ctx).Save(item).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, orgID, invoiceID, itemID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ? AND id = ?", orgID, invoiceID, itemID).
		Delete(&domain.InvoiceItem{})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) InsertReminder(ctx context.Context, db *gorm.DB, reminder *domain.InvoiceReminder) error {
	return db.WithContext(ctx).Create(reminder).Error
}

func (r *repo) UpdateReminderOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, sentAt *time.Time, emailErr *string) error {
	return db.WithContext(ctx).Model(&domain.InvoiceReminder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"email_sent":  emailErr == nil,
			"sent_at":     sentAt,
			"email_error": emailErr,
		}).Error
}
