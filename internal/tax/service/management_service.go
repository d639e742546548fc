package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"github.com/smallbiznis/ledgerbook/pkg/db/option"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type serviceParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  repository.Repository[taxdomain.TaxRate]
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[taxdomain.TaxRate]
}

func NewService(p serviceParams) taxdomain.Service {
	return &Service{
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  req.SortBy,
			OrderBy: req.OrderBy,
			Allow:   map[string]bool{"created_at": true, "updated_at": true, "name": true, "code": true},
		}),
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "name", Operator: option.EQ, Value: name}))
	}
	if code := strings.TrimSpace(req.Code); code != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "code", Operator: option.EQ, Value: strings.ToUpper(code)}))
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: *req.Active}))
	}

	items, err := s.repo.Find(ctx, &taxdomain.TaxRate{OrgID: orgID}, opts...)
	if err != nil {
		return nil, err
	}

	resp := make([]taxdomain.TaxRate, 0, len(items))
	for _, item := range items {
		if item != nil {
			resp = append(resp, *item)
		}
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now().UTC()
	record := &taxdomain.TaxRate{
		ID:                    s.genID.Generate(),
		OrgID:                 orgID,
		Name:                  strings.TrimSpace(req.Name),
		Code:                  strings.ToUpper(strings.TrimSpace(req.Code)),
		PercentageBasisPoints: req.PercentageBasisPoints,
		Inclusive:             req.Inclusive,
		Active:                active,
		ValidFrom:             utcPtr(req.ValidFrom),
		ValidTo:               utcPtr(req.ValidTo),
		Description:           trimmedPtr(req.Description),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("tax rate created",
		zap.String("tax_rate_id", record.ID.String()),
		zap.String("code", record.Code),
		zap.Int64("basis_points", record.PercentageBasisPoints),
	)
	return record, nil
}

func (s *Service) Get(ctx context.Context, id string) (*taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}
	rateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || rateID == 0 {
		return nil, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindOne(ctx, &taxdomain.TaxRate{OrgID: orgID, ID: rateID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}
	return item, nil
}

// Update edits a rate in place. Issued invoices are unaffected because their
// items carry the tax amount frozen at issuance.
func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.TaxRate, error) {
	item, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.PercentageBasisPoints != nil {
		item.PercentageBasisPoints = *req.PercentageBasisPoints
	}
	if req.Inclusive != nil {
		item.Inclusive = *req.Inclusive
	}
	if req.ValidFrom != nil {
		item.ValidFrom = utcPtr(req.ValidFrom)
	}
	if req.ValidTo != nil {
		item.ValidTo = utcPtr(req.ValidTo)
	}
	if req.Description != nil {
		item.Description = trimmedPtr(req.Description)
	}
	item.UpdatedAt = s.clock.Now().UTC()

	if err := item.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.Update(ctx, item.OrgID, item.ID, map[string]any{
		"name":                    item.Name,
		"percentage_basis_points": item.PercentageBasisPoints,
		"inclusive":               item.Inclusive,
		"valid_from":              item.ValidFrom,
		"valid_to":                item.ValidTo,
		"description":             item.Description,
		"updated_at":              item.UpdatedAt,
	}); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*taxdomain.TaxRate, error) {
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
