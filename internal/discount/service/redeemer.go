package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type redeemerParams struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config *config.LedgerConfigHolder
	Repo   repository.Repository[domain.Discount]
}

type redeemer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   *config.LedgerConfigHolder
	repo  repository.Repository[domain.Discount]
}

func NewRedeemer(p redeemerParams) domain.Redeemer {
	return &redeemer{
		log:   p.Log.Named("discount.redeemer"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Config,
		repo:  p.Repo,
	}
}

func (r *redeemer) Resolve(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Discount, error) {
	if id == 0 {
		return nil, nil
	}
	return r.repo.WithTrx(tx).FindOne(ctx, &domain.Discount{OrgID: orgID, ID: id})
}

func (r *redeemer) RequireByCode(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string) (*domain.Discount, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	item, err := r.repo.WithTrx(tx).FindOne(ctx, &domain.Discount{OrgID: orgID, Code: code})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// CustomerRedemptions counts live redemptions. Redemptions of voided invoices
// count only when the discount policy says so.
func (r *redeemer) CustomerRedemptions(ctx context.Context, tx *gorm.DB, discountID, customerID snowflake.ID) (int64, error) {
	stmt := tx.WithContext(ctx).Model(&domain.DiscountRedemption{}).
		Where("discount_id = ? AND customer_id = ? AND reversed_at IS NULL", discountID, customerID)
	if !r.cfg.Get().Discounts.CountVoidedRedemptions {
		stmt = stmt.Where("invoice_voided_at IS NULL")
	}
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Redeem counts the discount once for the invoice. A second call for the same
// invoice returns the existing row without touching the counter.
func (r *redeemer) Redeem(ctx context.Context, tx *gorm.DB, in domain.RedeemInput) (*domain.DiscountRedemption, error) {
	var existing domain.DiscountRedemption
	err := tx.WithContext(ctx).
		Where("discount_id = ? AND invoice_id = ?", in.DiscountID, in.InvoiceID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var discount domain.Discount
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND id = ?", in.OrgID, in.DiscountID).
		First(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if discount.MaxRedemptions != nil && discount.CurrentRedemptions >= *discount.MaxRedemptions {
		return nil, domain.ErrRedemptionLimit
	}
	if discount.MaxRedemptionsPerCustomer != nil {
		count, err := r.CustomerRedemptions(ctx, tx, discount.ID, in.CustomerID)
		if err != nil {
			return nil, err
		}
		if count >= *discount.MaxRedemptionsPerCustomer {
			return nil, domain.ErrRedemptionLimit
		}
	}

	now := r.clock.Now().UTC()
	res := tx.WithContext(ctx).Model(&domain.Discount{}).
		Where("id = ? AND current_redemptions = ?", discount.ID, discount.CurrentRedemptions).
		Updates(map[string]any{
			"current_redemptions": gorm.Expr("current_redemptions + 1"),
			"updated_at":          now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, domain.ErrRedemptionLimit
	}

	redemption := &domain.DiscountRedemption{
		ID:         r.genID.Generate(),
		OrgID:      in.OrgID,
		DiscountID: in.DiscountID,
		InvoiceID:  in.InvoiceID,
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
		RedeemedAt: now,
	}
	if err := tx.WithContext(ctx).Create(redemption).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrRedemptionLimit
		}
		return nil, err
	}

	r.log.Debug("discount redeemed",
		zap.String("discount_id", discount.ID.String()),
		zap.String("invoice_id", in.InvoiceID.String()),
		zap.Int64("amount", in.Amount),
	)
	return redemption, nil
}

func (r *redeemer) Reverse(ctx context.Context, tx *gorm.DB, orgID, discountID, invoiceID snowflake.ID) error {
	var redemption domain.DiscountRedemption
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND discount_id = ? AND invoice_id = ?", orgID, discountID, invoiceID).
		First(&redemption).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrRedemptionNotFound
	}
	if err != nil {
		return err
	}
	if redemption.ReversedAt != nil {
		return nil
	}

	now := r.clock.Now().UTC()
	if err := tx.WithContext(ctx).Model(&domain.DiscountRedemption{}).
		Where("id = ?", redemption.ID).
		Update("reversed_at", now).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&domain.Discount{}).
		Where("id = ? AND current_redemptions > 0", discountID).
		Updates(map[string]any{
			"current_redemptions": gorm.Expr("current_redemptions - 1"),
			"updated_at":          now,
		}).Error
}

// MarkInvoiceVoided flags the invoice's redemptions without reversing them.
// The global counter is unchanged.
func (r *redeemer) MarkInvoiceVoided(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID, at time.Time) error {
	return tx.WithContext(ctx).Model(&domain.DiscountRedemption{}).
		Where("org_id = ? AND invoice_id = ? AND invoice_voided_at IS NULL", orgID, invoiceID).
		Update("invoice_voided_at", at.UTC()).Error
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
