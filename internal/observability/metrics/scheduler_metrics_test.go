package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/ledgerbook/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, SchedulerJobReasonDeadlineExceeded},
		{"precondition", fmt.Errorf("generate: %w", apperr.PreconditionFailed("recurring_not_active", "")), SchedulerJobReasonPrecondition},
		{"db_lock_timeout", &pgconn.PgError{Code: "55P03"}, SchedulerJobReasonDBLockTimeout},
		{"serialization_failure", &pgconn.PgError{Code: "40001"}, SchedulerJobReasonSerializationFailure},
		{"unique_violation", gorm.ErrDuplicatedKey, SchedulerJobReasonUniqueViolation},
		{"unknown", errors.New("boom"), SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	assert.True(t, IsSchedulerErrorRetryable(apperr.Conflict("sequence_conflict", "")))
	assert.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsSchedulerErrorRetryable(apperr.Validation("invalid_quantity", "")))
	assert.False(t, IsSchedulerErrorRetryable(nil))
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "ledgerbook",
		Environment: "test",
	})

	metrics.AddBatchProcessed("recurring_invoices", "recurring_invoices", 3)
	metrics.AddBatchProcessed("recurring_invoices", "recurring_invoices", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("recurring_invoices", "recurring_invoices"))
	assert.Equal(t, float64(3), got)
}
