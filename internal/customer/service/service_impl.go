package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/customer/domain"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	currency := ""
	if strings.TrimSpace(req.Currency) != "" {
		normalized, err := money.NormalizeCurrency(req.Currency)
		if err != nil {
			return domain.Customer{}, domain.ErrInvalidCurrency
		}
		currency = normalized
	}

	now := s.clock.Now().UTC()
	customer := domain.Customer{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Name:           name,
		Email:          email,
		BillingAddress: strings.TrimSpace(req.BillingAddress),
		TaxID:          strings.TrimSpace(req.TaxID),
		Currency:       currency,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListCustomerFilter{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}

	pageSize := pagination.Size(int(req.PageSize))
	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(customer *domain.Customer) pagination.Cursor {
		return pagination.NewCursor(int64(customer.ID), customer.CreatedAt)
	})

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item != nil {
			customers = append(customers, *item)
		}
	}

	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Customer{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	return *item, nil
}

// Lookup implements domain.Directory.
func (s *Service) Lookup(ctx context.Context, orgID, customerID snowflake.ID) (domain.Profile, error) {
	item, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.Profile{}, err
	}
	if item == nil {
		return domain.Profile{}, domain.ErrNotFound
	}
	return domain.Profile{
		ID:             item.ID,
		Name:           item.Name,
		Email:          item.Email,
		BillingAddress: item.BillingAddress,
		TaxID:          item.TaxID,
		Currency:       item.Currency,
	}, nil
}
