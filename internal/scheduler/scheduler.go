package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/ledgerbook/internal/audit/domain"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	obscontext "github.com/smallbiznis/ledgerbook/internal/observability/context"
	obsmetrics "github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRecurringInvoices = "recurring_invoices"
	JobPastDueSweep      = "past_due_sweep"
	JobPendingRenders    = "pending_renders"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

// PendingRenderer renders issued documents that have no stored PDF yet.
type PendingRenderer interface {
	RenderPending(ctx context.Context, limit int) (int, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Invoices  invoicedomain.Service
	Generator recurringdomain.Generator
	Renderer  PendingRenderer `optional:"true"`
	Locker    *Locker         `optional:"true"`
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	invoices  invoicedomain.Service
	generator recurringdomain.Generator
	renderer  PendingRenderer
	locker    *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Invoices == nil || p.Generator == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       cfg,
		genID:     p.GenID,
		clock:     p.Clock,
		invoices:  p.Invoices,
		generator: p.Generator,
		renderer:  p.Renderer,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	release, held := s.acquire(ctx, name, timeout)
	if !held {
		schedMetrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		return nil
	}
	defer release()

	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout, the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the cross-instance lease for a job. Without a locker every
// instance runs the job; a Redis failure also falls back to running it.
func (s *Scheduler) acquire(ctx context.Context, name string, timeout time.Duration) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	ttl := s.cfg.LockTTL
	if timeout > ttl {
		ttl = timeout
	}
	token, ok, err := s.locker.TryLock(ctx, name, ttl)
	if err != nil {
		s.log.Warn("scheduler lock unavailable", zap.String("job", name), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		s.log.Debug("scheduler job held by another instance", zap.String("job", name))
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), name, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRecurringInvoices, func(ctx context.Context) error {
			return s.runJob(ctx, JobRecurringInvoices, s.cfg.RecurringBatchSize, s.cfg.JobTimeout, s.RecurringInvoicesJob)
		}},
		{JobPastDueSweep, func(ctx context.Context) error {
			return s.runJob(ctx, JobPastDueSweep, s.cfg.PastDueBatchSize, s.cfg.JobTimeout, s.PastDueSweepJob)
		}},
		{JobPendingRenders, func(ctx context.Context) error {
			if s.renderer == nil {
				return nil
			}
			return s.runJob(ctx, JobPendingRenders, s.cfg.RenderBatchSize, s.cfg.JobTimeout, s.PendingRendersJob)
		}},
	}

	for _, job := range jobs {
		if parent.Err() != nil {
			break
		}
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if lag := tick.Sub(nextRun); lag > 0 {
				schedMetrics.ObserveRunLoopLag(lag)
			}
			nextRun = tick.Add(s.cfg.RunInterval)
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RecurringInvoicesJob bills due recurring templates batch by batch. A batch
// that comes back short or with errors ends the run; failed templates are
// retried on the next tick.
func (s *Scheduler) RecurringInvoicesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecurringInvoices, s.cfg.RecurringBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		gens, err := s.generator.GenerateDue(ctx, now, s.cfg.RecurringBatchSize)
		generated, skipped := 0, 0
		for _, gen := range gens {
			if gen.Skipped {
				skipped++
				continue
			}
			generated++
			s.logRecurringGenerated(ctx, gen)
		}
		run.AddProcessed(generated)
		schedMetrics.AddBatchProcessed(JobRecurringInvoices, "invoices", generated)
		if skipped > 0 {
			schedMetrics.IncBatchDeferred(JobRecurringInvoices, obsmetrics.SchedulerBatchDeferredReasonAlreadyBilled)
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.recurring.failed", JobRecurringInvoices, 0, err)
			break
		}
		if len(gens) < s.cfg.RecurringBatchSize {
			break
		}
	}

	return jobErr
}

// PastDueSweepJob moves overdue open invoices to past_due.
func (s *Scheduler) PastDueSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPastDueSweep, s.cfg.PastDueBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lockStart := time.Now()
		moved, err := s.invoices.MarkPastDue(ctx, now, s.cfg.PastDueBatchSize)
		schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceInvoicePastDue, time.Since(lockStart))
		run.AddProcessed(moved)
		schedMetrics.AddBatchProcessed(JobPastDueSweep, "invoices", moved)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.past_due.failed", JobPastDueSweep, 0, err)
			return err
		}
		if moved < s.cfg.PastDueBatchSize {
			return nil
		}
	}
}

// PendingRendersJob retries documents whose background render did not land.
func (s *Scheduler) PendingRendersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPendingRenders, s.cfg.RenderBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	rendered, err := s.renderer.RenderPending(ctx, s.cfg.RenderBatchSize)
	run.AddProcessed(rendered)
	obsmetrics.Scheduler().AddBatchProcessed(JobPendingRenders, "documents", rendered)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.render.failed", JobPendingRenders, 0, err)
		return err
	}
	return nil
}
