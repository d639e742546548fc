package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"github.com/smallbiznis/ledgerbook/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.RecurringInvoice) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, rec *domain.RecurringInvoice) error {
	return db.WithContext(ctx).Save(rec).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.RecurringInvoice, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.RecurringInvoice, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id))
}

func first(stmt *gorm.DB) (*domain.RecurringInvoice, error) {
	var rec domain.RecurringInvoice
	err := stmt.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status *domain.Status, customerID *snowflake.ID) ([]*domain.RecurringInvoice, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if status != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "status", Value: *status}).Apply(stmt)
	}
	if customerID != nil {
		stmt = option.ApplyOperator(option.Condition{Field: "customer_id", Value: *customerID}).Apply(stmt)
	}

	var recs []*domain.RecurringInvoice
	if err := stmt.Order("created_at asc, id asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int, exclude []snowflake.ID) ([]*domain.RecurringInvoice, error) {
	locking := clause.Locking{Strength: "UPDATE"}
	switch strings.ToLower(db.Dialector.Name()) {
	case "postgres", "mysql":
		locking.Options = "SKIP LOCKED"
	}

	stmt := db.WithContext(ctx).
		Clauses(locking).
		Where("status = ? AND next_billing_date <= ?", domain.StatusActive, now).
		Order("next_billing_date asc, id asc")
	if len(exclude) > 0 {
		stmt = stmt.Where("id NOT IN ?", exclude)
	}
	stmt = option.WithLimit(limit).Apply(stmt)

	var recs []*domain.RecurringInvoice
	if err := stmt.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orgID, recurringID snowflake.ID) ([]*domain.RecurringInvoiceItem, error) {
	var items []*domain.RecurringInvoiceItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND recurring_invoice_id = ?", orgID, recurringID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, orgID, recurringID snowflake.ID, items []*domain.RecurringInvoiceItem) error {
	err := db.WithContext(ctx).
		Where("org_id = ? AND recurring_invoice_id = ?", orgID, recurringID).
		Delete(&domain.RecurringInvoiceItem{}).Error
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(items).Error
}
