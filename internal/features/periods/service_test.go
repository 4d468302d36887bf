package periods

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage/memory"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

const (
	admin = "tg:1"
	start = int64(1_700_000_000)
	day   = int64(86400)
)

var settings = validation.TrackerSettings{
	PeriodDuration:         day,
	MinimumPointsThreshold: 100,
	TokensPerPeriod:        1000,
}

func setup(t *testing.T) (*Service, *domain.ManualClock, *metrics.Metrics) {
	t.Helper()
	clock := domain.NewManualClock(start)
	m := metrics.New(prometheus.NewRegistry())
	return NewService(memory.NewStore(), clock, m), clock, m
}

func TestBootstrap(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	tr, p0, err := s.Bootstrap(ctx, admin, settings)
	require.NoError(t, err)
	assert.Equal(t, admin, tr.Admin)
	assert.Zero(t, tr.CurrentPeriod)
	assert.Zero(t, tr.ReservePoolAmount)
	assert.Equal(t, start, p0.StartTime)
	assert.Equal(t, start+day, p0.EndTime)
	assert.Equal(t, uint64(1000), p0.TokensAllocated)
	assert.False(t, p0.IsFinalized)

	stored, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, *p0, *stored)

	_, _, err = s.Bootstrap(ctx, "tg:2", settings)
	assert.ErrorIs(t, err, common.ErrTrackerAlreadyInitialized)

	tr, err = s.Tracker(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, tr.Admin)
}

func TestBootstrapValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings validation.TrackerSettings
		want     error
	}{
		{"короткий период", validation.TrackerSettings{PeriodDuration: 3600, MinimumPointsThreshold: 100, TokensPerPeriod: 1}, common.ErrInvalidPeriodDuration},
		{"длинный период", validation.TrackerSettings{PeriodDuration: 31 * day, MinimumPointsThreshold: 100, TokensPerPeriod: 1}, common.ErrInvalidPeriodDuration},
		{"низкий порог", validation.TrackerSettings{PeriodDuration: day, MinimumPointsThreshold: 99, TokensPerPeriod: 1}, common.ErrInvalidPointsThreshold},
		{"нулевой бюджет", validation.TrackerSettings{PeriodDuration: day, MinimumPointsThreshold: 100}, common.ErrInvalidTokenAllocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := setup(t)
			_, _, err := s.Bootstrap(context.Background(), admin, tt.settings)
			assert.ErrorIs(t, err, tt.want)

			_, err = s.Tracker(context.Background())
			assert.ErrorIs(t, err, common.ErrTrackerNotInitialized)
		})
	}
}

func TestAdvance(t *testing.T) {
	s, clock, m := setup(t)
	ctx := context.Background()
	_, _, err := s.Bootstrap(ctx, admin, settings)
	require.NoError(t, err)

	_, err = s.Advance(ctx, admin)
	assert.ErrorIs(t, err, common.ErrPeriodNotEnded)

	clock.Advance(day + 10)
	_, err = s.Advance(ctx, "tg:2")
	assert.ErrorIs(t, err, common.ErrUnauthorizedAdmin)

	next, err := s.Advance(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Number)
	assert.Equal(t, start+day+10, next.StartTime)
	assert.Equal(t, start+2*day+10, next.EndTime)

	p0, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, p0.IsFinalized)
	assert.False(t, p0.DistributionProcessed)

	tr, err := s.Tracker(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tr.CurrentPeriod)

	// Повтор в том же моменте: новый период ещё не закончился
	_, err = s.Advance(ctx, admin)
	assert.ErrorIs(t, err, common.ErrPeriodNotEnded)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeriodsAdvanced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeriodsFinalized.WithLabelValues("rollover")))
}

func TestAdvanceBeforeBootstrap(t *testing.T) {
	s, _, _ := setup(t)
	_, err := s.Advance(context.Background(), admin)
	assert.ErrorIs(t, err, common.ErrTrackerNotInitialized)
}

func TestGetMissingPeriod(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()
	_, _, err := s.Bootstrap(ctx, admin, settings)
	require.NoError(t, err)

	_, err = s.Get(ctx, 5)
	assert.ErrorIs(t, err, common.ErrPeriodDoesNotExist)
	assert.Equal(t, common.CategoryState, common.Classify(err))
}

func TestNewPeriodOverflow(t *testing.T) {
	_, err := newPeriod(1, 1<<63-10, day, 1)
	assert.ErrorIs(t, err, common.ErrInvalidTimestamp)
}
