package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name     string
		current  time.Time
		interval domain.BillingInterval
		count    int
		day      *int
		want     time.Time
	}{
		{"monthly", date(2026, 1, 15), domain.IntervalMonth, 1, nil, date(2026, 2, 15)},
		{"quarterly", date(2026, 1, 15), domain.IntervalMonth, 3, nil, date(2026, 4, 15)},
		{"month end clamps", date(2026, 1, 31), domain.IntervalMonth, 1, nil, date(2026, 2, 28)},
		{"anchor restores after clamp", date(2026, 2, 28), domain.IntervalMonth, 1, intPtr(31), date(2026, 3, 31)},
		{"anchor clamps to thirty", date(2026, 3, 31), domain.IntervalMonth, 1, intPtr(31), date(2026, 4, 30)},
		{"leap day yearly", date(2024, 2, 29), domain.IntervalYear, 1, nil, date(2025, 2, 28)},
		{"weekly", date(2026, 1, 15), domain.IntervalWeek, 2, nil, date(2026, 1, 29)},
		{"daily across year", date(2026, 12, 31), domain.IntervalDay, 1, nil, date(2027, 1, 1)},
		{"december rollover", date(2026, 12, 10), domain.IntervalMonth, 1, nil, date(2027, 1, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBillingDate(tt.current, tt.interval, tt.count, tt.day)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestNextBillingDateRejectsBadInput(t *testing.T) {
	_, err := NextBillingDate(date(2026, 1, 1), domain.IntervalMonth, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)

	_, err = NextBillingDate(date(2026, 1, 1), "fortnight", 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestNextBillingDateKeepsTimeOfDay(t *testing.T) {
	current := time.Date(2026, 1, 31, 6, 30, 0, 0, time.UTC)
	got, err := NextBillingDate(current, domain.IntervalMonth, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 6, 30, 0, 0, time.UTC), got)
}

func TestFirstBillingDate(t *testing.T) {
	assert.Equal(t, date(2026, 1, 15), firstBillingDate(date(2026, 1, 15), domain.IntervalMonth, nil))
	assert.Equal(t, date(2026, 1, 20), firstBillingDate(date(2026, 1, 15), domain.IntervalMonth, intPtr(20)))
	assert.Equal(t, date(2026, 2, 1), firstBillingDate(date(2026, 1, 15), domain.IntervalMonth, intPtr(1)))
	assert.Equal(t, date(2026, 1, 15), firstBillingDate(date(2026, 1, 15), domain.IntervalWeek, intPtr(1)))
}
