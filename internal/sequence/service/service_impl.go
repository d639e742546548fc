package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  *config.LedgerConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	cfg     *config.LedgerConfigHolder
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("sequence.service"),
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,
	}
}

// Next reserves the next number in scope. The row is created on first use,
// locked for the rest of tx, then advanced with a compare-and-set so a lost
// race surfaces as ErrConflict instead of a duplicate. Nothing is consumed
// unless tx commits.
func (s *Service) Next(ctx context.Context, tx *gorm.DB, scope domain.Scope) (domain.Allocation, error) {
	if scope.OrgID == 0 || !scope.DocumentType.Valid() || scope.Year < 1000 || scope.Year > 9999 {
		return domain.Allocation{}, domain.ErrInvalidScope
	}
	if tx == nil {
		var out domain.Allocation
		err := s.db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
			var err error
			out, err = s.Next(ctx, inner, scope)
			return err
		})
		return out, err
	}

	now := s.clock.Now().UTC()
	seed := domain.DocumentSequence{
		OrgID:        scope.OrgID,
		DocumentType: scope.DocumentType,
		Year:         scope.Year,
		LastValue:    0,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return domain.Allocation{}, classify(err)
	}

	var current domain.DocumentSequence
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND document_type = ? AND year = ?", scope.OrgID, scope.DocumentType, scope.Year).
		First(&current).Error
	if err != nil {
		return domain.Allocation{}, classify(err)
	}

	next := current.LastValue + 1
	res := tx.WithContext(ctx).
		Model(&domain.DocumentSequence{}).
		Where("org_id = ? AND document_type = ? AND year = ? AND last_value = ?",
			scope.OrgID, scope.DocumentType, scope.Year, current.LastValue).
		Updates(map[string]any{"last_value": next, "updated_at": now})
	if res.Error != nil {
		return domain.Allocation{}, classify(res.Error)
	}
	if res.RowsAffected != 1 {
		return domain.Allocation{}, domain.ErrConflict
	}

	s.metrics.RecordSequenceAllocation(ctx, string(scope.DocumentType))
	return domain.Allocation{
		Scope:  scope,
		Value:  next,
		Number: FormatNumber(scope, next, s.cfg.Get().Numbering.PadWidth),
	}, nil
}

func (s *Service) Peek(ctx context.Context, scope domain.Scope) (int64, error) {
	var current domain.DocumentSequence
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND document_type = ? AND year = ?", scope.OrgID, scope.DocumentType, scope.Year).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return current.LastValue, nil
}

func classify(err error) error {
	if db.IsDuplicateKeyErr(err) || db.IsRetryableErr(err) {
		return apperr.Wrap(apperr.KindConflict, domain.ErrConflict.Code, err)
	}
	return err
}
