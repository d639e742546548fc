package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeCreditNote DocumentType = "credit_note"
)

func (t DocumentType) Valid() bool {
	return t == DocumentTypeInvoice || t == DocumentTypeCreditNote
}

// DocumentSequence holds the last allocated value for one (org, type, year) scope.
type DocumentSequence struct {
	OrgID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	DocumentType DocumentType `gorm:"primaryKey;type:varchar(32)"`
	Year         int          `gorm:"primaryKey;autoIncrement:false"`
	LastValue    int64        `gorm:"not null;default:0"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }

type Scope struct {
	OrgID        snowflake.ID
	DocumentType DocumentType
	Year         int
}

// Allocation is a sequence value reserved inside a transaction. It is only
// consumed if that transaction commits.
type Allocation struct {
	Scope  Scope
	Value  int64
	Number string
}

type Service interface {
	// Next allocates the next value for scope inside tx.
	Next(ctx context.Context, tx *gorm.DB, scope Scope) (Allocation, error)
	// Peek returns the last allocated value, 0 when nothing was allocated yet.
	Peek(ctx context.Context, scope Scope) (int64, error)
}

var (
	ErrInvalidScope    = apperr.Validation("invalid_sequence_scope", "")
	ErrMalformedNumber = apperr.Validation("malformed_document_number", "")
	ErrNumberMismatch  = apperr.Validation("document_number_mismatch", "")
	ErrConflict        = apperr.Conflict("sequence_conflict", "")
)
