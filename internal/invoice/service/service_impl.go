package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/db/pagination"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    *config.LedgerConfigHolder
	Repo      invoicedomain.Repository
	Sequences sequencedomain.Service
	Taxes     taxdomain.Resolver
	Discounts discountdomain.Redeemer
	Customers customerdomain.Directory

	AuditSvc auditdomain.Service            `optional:"true"`
	Metrics  *metrics.Metrics               `optional:"true"`
	Notifier invoicedomain.Notifier         `optional:"true"`
	Renderer invoicedomain.DocumentRenderer `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   *config.LedgerConfigHolder

	repo      invoicedomain.Repository
	sequences sequencedomain.Service
	taxes     taxdomain.Resolver
	discounts discountdomain.Redeemer
	customers customerdomain.Directory

	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	notifier invoicedomain.Notifier
	renderer invoicedomain.DocumentRenderer
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Config,

		repo:      p.Repo,
		sequences: p.Sequences,
		taxes:     p.Taxes,
		discounts: p.Discounts,
		customers: p.Customers,

		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		notifier: p.Notifier,
		renderer: p.Renderer,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.InvoiceDetail, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return nil, invoicedomain.ErrInvalidCustomer
	}
	profile, err := s.customers.Lookup(ctx, orgID, customerID)
	if err != nil {
		return nil, err
	}

	ledgerCfg := s.cfg.Get()
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = profile.Currency
	}
	if currency == "" {
		currency = ledgerCfg.DefaultCurrency
	}
	currency, err = money.NormalizeCurrency(currency)
	if err != nil {
		return nil, invoicedomain.ErrInvalidCurrency
	}

	behavior := req.TaxBehavior
	if behavior == "" {
		behavior = taxdomain.TaxBehaviorExclusive
	}
	if !behavior.Valid() {
		return nil, invoicedomain.ErrInvalidTaxBehavior
	}

	netTerms := ledgerCfg.DefaultNetTermsDays
	if req.NetTermsDays != nil {
		netTerms = *req.NetTermsDays
	}
	if netTerms < 0 {
		return nil, invoicedomain.ErrInvalidNetTerms
	}

	var detail *invoicedomain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv := s.newDraft(orgID, customerID, currency, behavior, netTerms, strings.TrimSpace(req.Memo))
		if err := s.repo.Insert(ctx, tx, inv); err != nil {
			return err
		}

		items := make([]*invoicedomain.InvoiceItem, 0, len(req.Items))
		for i, input := range req.Items {
			item, err := s.buildItem(ctx, tx, inv, input, i)
			if err != nil {
				return err
			}
			if err := s.repo.InsertItem(ctx, tx, item); err != nil {
				return err
			}
			items = append(items, item)
		}

		if code := strings.TrimSpace(req.DiscountCode); code != "" {
			if err := s.attachDiscountTx(ctx, tx, inv, items, code); err != nil {
				return err
			}
		}

		if err := s.recomputeTx(ctx, tx, inv, items); err != nil {
			return err
		}
		detail = toDetail(inv, items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.InvoiceDetail, error) {
	orgID, invoiceID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.loadDetail(ctx, s.db, inv)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*invoicedomain.InvoiceDetail, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	number = strings.ToLower(strings.TrimSpace(number))
	if number == "" {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	inv, err := s.repo.FindByNumber(ctx, s.db, orgID, number)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.loadDetail(ctx, s.db, inv)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := invoicedomain.ListInvoiceFilter{
		Status:  req.Status,
		DueFrom: req.DueFrom,
		DueTo:   req.DueTo,
		SortBy:  req.SortBy,
		OrderBy: req.OrderBy,
	}
	if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) != "" {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidCustomer
		}
		filter.CustomerID = &customerID
	}

	pageSize := pagination.Size(req.PageSize)
	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(inv *invoicedomain.Invoice) pagination.Cursor {
		return pagination.NewCursor(int64(inv.ID), inv.CreatedAt)
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			invoices = append(invoices, *item)
		}
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) newDraft(orgID, customerID snowflake.ID, currency string, behavior invoicedomain.TaxBehavior, netTerms int, memo string) *invoicedomain.Invoice {
	now := s.clock.Now().UTC()
	return &invoicedomain.Invoice{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CustomerID:   customerID,
		Status:       invoicedomain.InvoiceStatusDraft,
		Currency:     currency,
		TaxBehavior:  behavior,
		NetTermsDays: netTerms,
		Memo:         memo,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// buildItem validates an explicit item. Its tax and discount references must exist.
func (s *Service) buildItem(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, input invoicedomain.ItemInput, position int) (*invoicedomain.InvoiceItem, error) {
	if input.Quantity.IsNegative() {
		return nil, invoicedomain.ErrInvalidQuantity
	}
	if input.UnitAmount < 0 {
		return nil, invoicedomain.ErrInvalidUnitAmount
	}

	taxRateID, err := s.requireTaxRate(ctx, tx, inv.OrgID, input.TaxRateID)
	if err != nil {
		return nil, err
	}
	discountID, err := s.requireDiscount(ctx, tx, inv.OrgID, input.DiscountID)
	if err != nil {
		return nil, err
	}

	sortOrder := position
	if input.SortOrder != nil {
		sortOrder = *input.SortOrder
	}

	now := s.clock.Now().UTC()
	return &invoicedomain.InvoiceItem{
		ID:          s.genID.Generate(),
		OrgID:       inv.OrgID,
		InvoiceID:   inv.ID,
		Description: strings.TrimSpace(input.Description),
		Quantity:    input.Quantity,
		UnitAmount:  input.UnitAmount,
		TaxRateID:   taxRateID,
		DiscountID:  discountID,
		SortOrder:   sortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Service) requireTaxRate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidReference
	}
	if _, err := s.taxes.Require(ctx, tx, orgID, id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Service) requireDiscount(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidReference
	}
	d, err := s.discounts.Resolve(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, discountdomain.ErrNotFound
	}
	return &id, nil
}

// loadLookups resolves every reference softly. A reference that no longer
// resolves simply contributes nothing.
func (s *Service) loadLookups(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) (Lookups, error) {
	lk := Lookups{
		Rates:               map[snowflake.ID]*taxdomain.TaxRate{},
		Discounts:           map[snowflake.ID]*discountdomain.Discount{},
		CustomerRedemptions: map[snowflake.ID]int64{},
	}

	discountIDs := map[snowflake.ID]struct{}{}
	if inv.DiscountID != nil {
		discountIDs[*inv.DiscountID] = struct{}{}
	}
	for _, item := range items {
		if item.TaxRateID != nil {
			if _, seen := lk.Rates[*item.TaxRateID]; !seen {
				rate, err := s.taxes.Resolve(ctx, tx, inv.OrgID, *item.TaxRateID)
				if err != nil {
					return Lookups{}, err
				}
				lk.Rates[*item.TaxRateID] = rate
			}
		}
		if item.DiscountID != nil {
			discountIDs[*item.DiscountID] = struct{}{}
		}
	}

	for id := range discountIDs {
		d, err := s.discounts.Resolve(ctx, tx, inv.OrgID, id)
		if err != nil {
			return Lookups{}, err
		}
		lk.Discounts[id] = d
		if d != nil && d.MaxRedemptionsPerCustomer != nil {
			count, err := s.discounts.CustomerRedemptions(ctx, tx, id, inv.CustomerID)
			if err != nil {
				return Lookups{}, err
			}
			lk.CustomerRedemptions[id] = count
		}
	}
	return lk, nil
}

func (s *Service) computeOptions(inv *invoicedomain.Invoice) ComputeOptions {
	return ComputeOptions{
		Behavior:           inv.TaxBehavior,
		Currency:           inv.Currency,
		At:                 s.clock.Now().UTC(),
		InclusiveMethod:    s.cfg.Get().Tax.InclusiveMethod,
		DocumentDiscountID: inv.DiscountID,
	}
}

// recomputeTx recalculates the draft inside tx and persists items and totals.
// Any failure aborts the caller's transaction.
func (s *Service) recomputeTx(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) error {
	_, err := s.recomputeWithTotals(ctx, tx, inv, items)
	return err
}

func (s *Service) recomputeWithTotals(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) (Totals, error) {
	lk, err := s.loadLookups(ctx, tx, inv, items)
	if err != nil {
		return Totals{}, err
	}
	totals, err := Recompute(items, lk, s.computeOptions(inv))
	if err != nil {
		return Totals{}, err
	}
	ApplyTotals(inv, totals)
	inv.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.SaveItems(ctx, tx, items); err != nil {
		return Totals{}, err
	}
	if err := s.repo.Save(ctx, tx, inv); err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func (s *Service) loadDetail(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) (*invoicedomain.InvoiceDetail, error) {
	items, err := s.repo.ListItems(ctx, db, inv.OrgID, inv.ID)
	if err != nil {
		return nil, err
	}
	return toDetail(inv, items), nil
}

func toDetail(inv *invoicedomain.Invoice, items []*invoicedomain.InvoiceItem) *invoicedomain.InvoiceDetail {
	detail := &invoicedomain.InvoiceDetail{Invoice: *inv, Items: make([]invoicedomain.InvoiceItem, 0, len(items))}
	for _, item := range items {
		if item != nil {
			detail.Items = append(detail.Items, *item)
		}
	}
	return detail
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) parseScope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return 0, 0, invoicedomain.ErrInvalidInvoiceID
	}
	return orgID, invoiceID, nil
}
