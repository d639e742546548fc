package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"github.com/smallbiznis/ledgerbook/pkg/db/option"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     repository.Repository[domain.Discount]
	Redeemer domain.Redeemer
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     repository.Repository[domain.Discount]
	redeemer domain.Redeemer
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("discount.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		redeemer: p.Redeemer,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Discount, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	code := normalizeCode(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	discountType := domain.Type(strings.ToLower(strings.TrimSpace(string(req.Type))))
	currency := ""
	switch discountType {
	case domain.TypePercent:
		if req.Value <= 0 || req.Value > money.BasisPointsScale {
			return nil, apperr.WithMessage(domain.ErrInvalidValue, "percent value is basis points between 1 and 10000")
		}
	case domain.TypeFixed:
		if req.Value <= 0 {
			return nil, apperr.WithMessage(domain.ErrInvalidValue, "fixed value must be positive minor units")
		}
		normalized, err := money.NormalizeCurrency(req.Currency)
		if err != nil {
			return nil, domain.ErrInvalidCurrency
		}
		currency = normalized
	default:
		return nil, domain.ErrInvalidType
	}

	if req.ValidFrom != nil && req.ValidTo != nil && !req.ValidTo.After(*req.ValidFrom) {
		return nil, domain.ErrInvalidWindow
	}
	if (req.MaxRedemptions != nil && *req.MaxRedemptions < 1) ||
		(req.MaxRedemptionsPerCustomer != nil && *req.MaxRedemptionsPerCustomer < 1) ||
		req.MinimumAmount < 0 {
		return nil, domain.ErrInvalidLimit
	}

	now := s.clock.Now().UTC()
	record := &domain.Discount{
		ID:                        s.genID.Generate(),
		OrgID:                     orgID,
		Code:                      code,
		Name:                      strings.TrimSpace(req.Name),
		Type:                      discountType,
		Value:                     req.Value,
		Currency:                  currency,
		ValidFrom:                 utcPtr(req.ValidFrom),
		ValidTo:                   utcPtr(req.ValidTo),
		Active:                    true,
		MaxRedemptions:            req.MaxRedemptions,
		MaxRedemptionsPerCustomer: req.MaxRedemptionsPerCustomer,
		MinimumAmount:             req.MinimumAmount,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Discount, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	discountID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || discountID == 0 {
		return nil, domain.ErrInvalidID
	}
	item, err := s.redeemer.Resolve(ctx, s.db, orgID, discountID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.redeemer.RequireByCode(ctx, s.db, orgID, code)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Discount, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  req.SortBy,
			OrderBy: req.OrderBy,
			Allow:   map[string]bool{"created_at": true, "code": true},
		}),
	}
	if code := normalizeCode(req.Code); code != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "code", Value: code}))
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Value: *req.Active}))
	}

	items, err := s.repo.Find(ctx, &domain.Discount{OrgID: orgID}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Discount, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*domain.Discount, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Active = false
	item.UpdatedAt = s.clock.Now().UTC()
	if _, err := s.repo.Update(ctx, item.OrgID, item.ID, map[string]any{
		"active":     false,
		"updated_at": item.UpdatedAt,
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate is the explicit user path: every failed check is an error
// carrying the reason.
func (s *Service) Validate(ctx context.Context, req domain.ValidateRequest) (*domain.Evaluation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if req.Amount < 0 {
		return nil, apperr.WithMessage(domain.ErrInvalidValue, "amount must not be negative")
	}

	discount, err := s.redeemer.RequireByCode(ctx, s.db, orgID, req.Code)
	if err != nil {
		return nil, err
	}

	var customerRedemptions int64
	if strings.TrimSpace(req.CustomerID) != "" {
		customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		customerRedemptions, err = s.redeemer.CustomerRedemptions(ctx, s.db, discount.ID, customerID)
		if err != nil {
			return nil, err
		}
	}

	eval := Evaluate(domain.EvaluateInput{
		Discount:            discount,
		Base:                req.Amount,
		Currency:            strings.ToUpper(strings.TrimSpace(req.Currency)),
		CustomerRedemptions: customerRedemptions,
		At:                  s.clock.Now().UTC(),
	})
	if !eval.Applied {
		return nil, apperr.WithMessage(domain.ErrNotApplicable, string(eval.Reason))
	}
	return &eval, nil
}

func (s *Service) ReverseRedemption(ctx context.Context, discountID, invoiceID string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	did, err := snowflake.ParseString(strings.TrimSpace(discountID))
	if err != nil || did == 0 {
		return domain.ErrInvalidID
	}
	iid, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || iid == 0 {
		return domain.ErrInvalidID
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.redeemer.Reverse(ctx, tx, orgID, did, iid)
	}); err != nil {
		return err
	}

	if s.auditSvc != nil {
		targetID := did.String()
		if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, auditdomain.ActionDiscountRedemptionReversed, "discount", &targetID, map[string]any{
			"invoice_id": iid.String(),
		}); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", auditdomain.ActionDiscountRedemptionReversed), zap.Error(err))
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
