package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	customerdomain "github.com/smallbiznis/ledgerbook/internal/customer/domain"
	discountdomain "github.com/smallbiznis/ledgerbook/internal/discount/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbook/internal/orgcontext"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"github.com/smallbiznis/ledgerbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    *config.LedgerConfigHolder
	Repo      recurringdomain.Repository
	Ledger    invoicedomain.Ledger
	Customers customerdomain.Directory
	Taxes     taxdomain.Resolver
	Discounts discountdomain.Redeemer

	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       *config.LedgerConfigHolder
	repo      recurringdomain.Repository
	ledger    invoicedomain.Ledger
	customers customerdomain.Directory
	taxes     taxdomain.Resolver
	discounts discountdomain.Redeemer

	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("recurring.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		repo:      p.Repo,
		ledger:    p.Ledger,
		customers: p.Customers,
		taxes:     p.Taxes,
		discounts: p.Discounts,

		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req recurringdomain.CreateRequest) (*recurringdomain.Detail, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return nil, recurringdomain.ErrInvalidCustomer
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
		return nil, recurringdomain.ErrInvalidCurrency
	}

	behavior := req.TaxBehavior
	if behavior == "" {
		behavior = taxdomain.TaxBehaviorExclusive
	}
	if !behavior.Valid() {
		return nil, recurringdomain.ErrInvalidTaxBehavior
	}
	netTerms := ledgerCfg.DefaultNetTermsDays
	if req.NetTermsDays != nil {
		netTerms = *req.NetTermsDays
	}
	if netTerms < 0 {
		return nil, recurringdomain.ErrInvalidNetTerms
	}

	if err := validateSchedule(req); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, recurringdomain.ErrNoItems
	}

	start := req.StartDate.UTC()
	now := s.clock.Now().UTC()
	rec := &recurringdomain.RecurringInvoice{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		CustomerID:        customerID,
		Currency:          currency,
		TaxBehavior:       behavior,
		NetTermsDays:      netTerms,
		AutoIssue:         req.AutoIssue,
		BillingInterval:   req.BillingInterval,
		IntervalCount:     req.IntervalCount,
		StartDate:         start,
		BillingDayOfMonth: req.BillingDayOfMonth,
		OccurrencesLimit:  req.OccurrencesLimit,
		Status:            recurringdomain.StatusActive,
		Memo:              strings.TrimSpace(req.Memo),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		rec.EndDate = &end
	}
	rec.NextBillingDate = firstBillingDate(start, rec.BillingInterval, rec.BillingDayOfMonth)
	if rec.EndDate != nil && rec.NextBillingDate.After(*rec.EndDate) {
		return nil, recurringdomain.ErrInvalidEndDate
	}

	var detail *recurringdomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, rec); err != nil {
			return err
		}
		items, err := s.buildItems(ctx, tx, rec, req.Items)
		if err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(ctx, tx, orgID, rec.ID, items); err != nil {
			return err
		}
		detail = toDetail(rec, items)
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}

	s.log.Info("recurring invoice created",
		zap.String("recurring_invoice_id", rec.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("billing_interval", string(rec.BillingInterval)),
		zap.Int("interval_count", rec.IntervalCount),
		zap.Time("next_billing_date", rec.NextBillingDate),
	)
	return detail, nil
}

func validateSchedule(req recurringdomain.CreateRequest) error {
	if !req.BillingInterval.Valid() {
		return recurringdomain.ErrInvalidInterval
	}
	if req.IntervalCount < 1 {
		return recurringdomain.ErrInvalidCount
	}
	if req.StartDate.IsZero() {
		return recurringdomain.ErrInvalidStartDate
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return recurringdomain.ErrInvalidEndDate
	}
	if req.BillingDayOfMonth != nil && (*req.BillingDayOfMonth < 1 || *req.BillingDayOfMonth > 31) {
		return recurringdomain.ErrInvalidDayOfMonth
	}
	if req.OccurrencesLimit != nil && *req.OccurrencesLimit < 1 {
		return recurringdomain.ErrInvalidLimit
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*recurringdomain.Detail, error) {
	orgID, recID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.FindByID(ctx, s.db, orgID, recID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, recurringdomain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, orgID, recID)
	if err != nil {
		return nil, err
	}
	return toDetail(rec, items), nil
}

func (s *Service) List(ctx context.Context, req recurringdomain.ListRequest) ([]recurringdomain.RecurringInvoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var customerID *snowflake.ID
	if req.CustomerID != nil && strings.TrimSpace(*req.CustomerID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return nil, recurringdomain.ErrInvalidCustomer
		}
		customerID = &id
	}
	recs, err := s.repo.List(ctx, s.db, orgID, req.Status, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]recurringdomain.RecurringInvoice, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*recurringdomain.RecurringInvoice, error) {
	return s.transition(ctx, id, recurringdomain.StatusPaused, func(rec *recurringdomain.RecurringInvoice) error {
		if rec.Status != recurringdomain.StatusActive {
			return apperr.WithMessage(recurringdomain.ErrInvalidTransition, "only active schedules can be paused")
		}
		return nil
	})
}

// Resume reactivates a paused schedule. Periods missed while paused are not
// back-billed: the next date rolls forward past now.
func (s *Service) Resume(ctx context.Context, id string) (*recurringdomain.RecurringInvoice, error) {
	return s.transition(ctx, id, recurringdomain.StatusActive, func(rec *recurringdomain.RecurringInvoice) error {
		if rec.Status != recurringdomain.StatusPaused {
			return apperr.WithMessage(recurringdomain.ErrInvalidTransition, "only paused schedules can be resumed")
		}
		now := s.clock.Now().UTC()
		for rec.NextBillingDate.Before(now) {
			next, err := NextBillingDate(rec.NextBillingDate, rec.BillingInterval, rec.IntervalCount, anchorDay(rec))
			if err != nil {
				return err
			}
			rec.NextBillingDate = next
		}
		if rec.EndDate != nil && rec.NextBillingDate.After(*rec.EndDate) {
			rec.Status = recurringdomain.StatusCompleted
		}
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*recurringdomain.RecurringInvoice, error) {
	return s.transition(ctx, id, recurringdomain.StatusCancelled, func(rec *recurringdomain.RecurringInvoice) error {
		if rec.Status.Terminal() {
			return apperr.WithMessage(recurringdomain.ErrInvalidTransition, "schedule is "+string(rec.Status))
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, to recurringdomain.Status, check func(*recurringdomain.RecurringInvoice) error) (*recurringdomain.RecurringInvoice, error) {
	orgID, recID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		rec  *recurringdomain.RecurringInvoice
		from recurringdomain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err = s.lock(ctx, tx, orgID, recID)
		if err != nil {
			return err
		}
		from = rec.Status
		if rec.Status == to {
			return nil
		}
		if err := check(rec); err != nil {
			return err
		}
		if rec.Status == from {
			rec.Status = to
		}
		rec.UpdatedAt = s.clock.Now().UTC()
		return s.repo.Save(ctx, tx, rec)
	})
	if err != nil {
		return nil, s.classify(err)
	}
	if from != rec.Status {
		s.log.Info("recurring invoice status changed",
			zap.String("recurring_invoice_id", rec.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(rec.Status)),
		)
	}
	return rec, nil
}

// ReplaceItems swaps the template lines. Invoices already generated keep
// their own copies.
func (s *Service) ReplaceItems(ctx context.Context, id string, inputs []recurringdomain.ItemInput) (*recurringdomain.Detail, error) {
	orgID, recID, err := s.parseScope(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, recurringdomain.ErrNoItems
	}

	var detail *recurringdomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.lock(ctx, tx, orgID, recID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return apperr.WithMessage(recurringdomain.ErrInvalidTransition, "schedule is "+string(rec.Status))
		}
		items, err := s.buildItems(ctx, tx, rec, inputs)
		if err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(ctx, tx, orgID, recID, items); err != nil {
			return err
		}
		rec.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Save(ctx, tx, rec); err != nil {
			return err
		}
		detail = toDetail(rec, items)
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}
	return detail, nil
}

func (s *Service) buildItems(ctx context.Context, tx *gorm.DB, rec *recurringdomain.RecurringInvoice, inputs []recurringdomain.ItemInput) ([]*recurringdomain.RecurringInvoiceItem, error) {
	now := s.clock.Now().UTC()
	items := make([]*recurringdomain.RecurringInvoiceItem, 0, len(inputs))
	for i, input := range inputs {
		if input.Quantity.IsNegative() {
			return nil, recurringdomain.ErrInvalidQuantity
		}
		if input.UnitAmount < 0 {
			return nil, recurringdomain.ErrInvalidUnitAmount
		}
		item := &recurringdomain.RecurringInvoiceItem{
			ID:                 s.genID.Generate(),
			OrgID:              rec.OrgID,
			RecurringInvoiceID: rec.ID,
			Description:        strings.TrimSpace(input.Description),
			Quantity:           input.Quantity,
			UnitAmount:         input.UnitAmount,
			SortOrder:          i,
			CreatedAt:          now,
		}
		if input.SortOrder != nil {
			item.SortOrder = *input.SortOrder
		}

		if raw := strings.TrimSpace(input.TaxRateID); raw != "" {
			rateID, err := snowflake.ParseString(raw)
			if err != nil || rateID == 0 {
				return nil, recurringdomain.ErrInvalidReference
			}
			if _, err := s.taxes.Require(ctx, tx, rec.OrgID, rateID); err != nil {
				return nil, err
			}
			item.TaxRateID = &rateID
		}
		if raw := strings.TrimSpace(input.DiscountID); raw != "" {
			discountID, err := snowflake.ParseString(raw)
			if err != nil || discountID == 0 {
				return nil, recurringdomain.ErrInvalidReference
			}
			d, err := s.discounts.Resolve(ctx, tx, rec.OrgID, discountID)
			if err != nil {
				return nil, err
			}
			if d == nil {
				return nil, apperr.WithMessage(recurringdomain.ErrInvalidReference, "discount not found")
			}
			item.DiscountID = &discountID
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*recurringdomain.RecurringInvoice, error) {
	rec, err := s.repo.FindForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, recurringdomain.ErrNotFound
	}
	return rec, nil
}

// anchorDay pins monthly and yearly schedules to the start date's day when no
// explicit billing day is set, so a clamp in February does not stick.
func anchorDay(rec *recurringdomain.RecurringInvoice) *int {
	if rec.BillingDayOfMonth != nil {
		return rec.BillingDayOfMonth
	}
	day := rec.StartDate.Day()
	return &day
}

func toDetail(rec *recurringdomain.RecurringInvoice, items []*recurringdomain.RecurringInvoiceItem) *recurringdomain.Detail {
	detail := &recurringdomain.Detail{RecurringInvoice: *rec, Items: make([]recurringdomain.RecurringInvoiceItem, 0, len(items))}
	for _, item := range items {
		detail.Items = append(detail.Items, *item)
	}
	return detail
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "recurring_invoice", &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) classify(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if db.IsDuplicateKeyErr(err) || db.IsRetryableErr(err) {
		return apperr.Wrap(apperr.KindConflict, "recurring_invoice_conflict", err)
	}
	return err
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, recurringdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) parseScope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	recID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || recID == 0 {
		return 0, 0, recurringdomain.ErrInvalidID
	}
	return orgID, recID, nil
}

func dateOnly(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
