package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, note *domain.CreditNote) error {
	return db.WithContext(ctx).Create(note).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CreditNote, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CreditNote, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", orgID, id))
}

func first(stmt *gorm.DB) (*domain.CreditNote, error) {
	var note domain.CreditNote
	err := stmt.First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, note *domain.CreditNote) error {
	return db.WithContext(ctx).Save(note).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]*domain.CreditNote, error) {
	var notes []*domain.CreditNote
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("created_at asc, id asc").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *repo) SumIssuedForInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.CreditNote{}).
		Select("COALESCE(SUM(total), 0)").
		Where("org_id = ? AND invoice_id = ? AND status IN ?", orgID, invoiceID,
			[]domain.Status{domain.StatusIssued, domain.StatusApplied}).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orgID, creditNoteID snowflake.ID) ([]*domain.CreditNoteItem, error) {
	var items []*domain.CreditNoteItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND credit_note_id = ?", orgID, creditNoteID).
		Order("sort_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.CreditNoteItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) SaveItems(ctx context.Context, db *gorm.DB, items []*domain.CreditNoteItem) error {
	for _, item := range items {
		if err := db.WithContext(ctx).Save(item).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, orgID, creditNoteID, itemID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("org_id = ? AND credit_note_id = ? AND id = ?", orgID, creditNoteID, itemID).
		Delete(&domain.CreditNoteItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertApplication(ctx context.Context, db *gorm.DB, app *domain.CreditNoteApplication) error {
	return db.WithContext(ctx).Create(app).Error
}

func (r *repo) FindApplication(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CreditNoteApplication, error) {
	return firstApplication(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindReversal(ctx context.Context, db *gorm.DB, orgID, applicationID snowflake.ID) (*domain.CreditNoteApplication, error) {
	return firstApplication(db.WithContext(ctx).Where("org_id = ? AND reverses_id = ?", orgID, applicationID))
}

func firstApplication(stmt *gorm.DB) (*domain.CreditNoteApplication, error) {
	var app domain.CreditNoteApplication
	err := stmt.First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *repo) ListApplications(ctx context.Context, db *gorm.DB, orgID, creditNoteID snowflake.ID) ([]*domain.CreditNoteApplication, error) {
	var apps []*domain.CreditNoteApplication
	err := db.WithContext(ctx).
		Where("org_id = ? AND credit_note_id = ?", orgID, creditNoteID).
		Order("applied_at asc, id asc").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}
