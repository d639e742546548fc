package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/ledgerbook/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) RenderPending(ctx context.Context, limit int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useTestRegistry(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{}), cfg: DefaultConfig()}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "ledgerbook",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgerbook_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "ledgerbook",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgerbook_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	useTestRegistry(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{}), cfg: DefaultConfig()}
	boom := errors.New("boom")
	err = s.runJob(context.Background(), "broken_job", 1, time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken_job")
}

func TestRunOnceSweepsPastDueAndBillsRecurring(t *testing.T) {
	useTestRegistry(t)
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", 10000))

	env.Clock.Advance(31 * 24 * time.Hour)
	now := env.Clock.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rec, err := env.Recurring.Create(env.Ctx(), recurringdomain.CreateRequest{
		CustomerID:      customer.ID.String(),
		BillingInterval: recurringdomain.IntervalMonth,
		IntervalCount:   1,
		StartDate:       start,
		Items: []recurringdomain.ItemInput{{
			Description: "Hosting",
			Quantity:    decimal.NewFromInt(1),
			UnitAmount:  5000,
		}},
	})
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	s := newScheduler(t, env, renderer)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, invoicedomain.InvoiceStatusPastDue, env.Reload(t, inv.ID).Status)

	var generated []invoicedomain.Invoice
	require.NoError(t, env.DB.Where("recurring_invoice_id = ?", rec.ID).Find(&generated).Error)
	require.Len(t, generated, 1)
	assert.Equal(t, int64(5000), generated[0].Total)
	assert.Equal(t, 1, renderer.calls)

	// a second pass finds nothing new
	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, env.DB.Where("recurring_invoice_id = ?", rec.ID).Find(&generated).Error)
	assert.Len(t, generated, 1)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	useTestRegistry(t)
	env := testutil.New(t)
	customer := env.Customer(t, "USD")
	inv := env.IssuedInvoice(t, customer.ID, testutil.Item("Consulting", "1", 10000))
	env.Clock.Advance(31 * 24 * time.Hour)

	renderer := &fakeRenderer{}
	s := newScheduler(t, env, renderer)
	s.cfg.EnabledJobs = []string{JobPendingRenders}
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, invoicedomain.InvoiceStatusIssued, env.Reload(t, inv.ID).Status)
	assert.Equal(t, 1, renderer.calls)
}

func TestRunOnceReportsRenderFailures(t *testing.T) {
	useTestRegistry(t)
	env := testutil.New(t)

	renderer := &fakeRenderer{err: errors.New("storage offline")}
	s := newScheduler(t, env, renderer)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobPendingRenders)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 10}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 10, cfg.RecurringBatchSize)
	assert.Equal(t, 200, cfg.PastDueBatchSize)
	assert.Equal(t, 25, cfg.RenderBatchSize)
}

func newScheduler(t *testing.T, env *testutil.Env, renderer PendingRenderer) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	s, err := New(Params{
		Log:       zap.NewNop(),
		Invoices:  env.Invoices,
		Generator: env.Recurring,
		Renderer:  renderer,
		GenID:     node,
		Clock:     env.Clock,
	})
	require.NoError(t, err)
	return s
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "ledgerbook",
		Environment: "test",
	})
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	})
	return registry
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
