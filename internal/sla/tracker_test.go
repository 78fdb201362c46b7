package sla_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"breederhub/internal/domain"
	"breederhub/internal/sla"
)

func TestNextMean(t *testing.T) {
	t.Run("FirstSample", func(t *testing.T) {
		mean, count := sla.NextMean(0, 0, 3600)
		assert.Equal(t, float64(3600), mean)
		assert.Equal(t, int64(1), count)
	})

	t.Run("TwoSamples", func(t *testing.T) {
		mean, count := sla.NextMean(0, 0, 1000)
		mean, count = sla.NextMean(mean, count, 3000)
		assert.Equal(t, float64(2000), mean)
		assert.Equal(t, int64(2), count)
	})

	t.Run("RunningSequence", func(t *testing.T) {
		var mean float64
		var count int64
		samples := []float64{120, 7200, 30, 86400, 600}
		var sum float64
		for _, v := range samples {
			mean, count = sla.NextMean(mean, count, v)
			sum += v
		}
		assert.Equal(t, int64(len(samples)), count)
		assert.InDelta(t, sum/float64(len(samples)), mean, 1e-9)
	})
}

func TestQualifiesForBadge(t *testing.T) {
	thresholds := sla.Thresholds{MinSamples: 5, MaxAvgSeconds: 14400}

	t.Run("BelowMinSamplesNeverQualifies", func(t *testing.T) {
		assert.False(t, sla.QualifiesForBadge(1, 4, thresholds))
		assert.False(t, sla.QualifiesForBadge(0, 0, thresholds))
	})

	t.Run("FastMeanQualifies", func(t *testing.T) {
		assert.True(t, sla.QualifiesForBadge(3600, 5, thresholds))
		assert.True(t, sla.QualifiesForBadge(14400, 20, thresholds))
	})

	t.Run("SlowMeanDisqualifies", func(t *testing.T) {
		assert.False(t, sla.QualifiesForBadge(14401, 100, thresholds))
	})
}

type MockSLAStatsRepo struct {
	mock.Mock
}

func (m *MockSLAStatsRepo) Get(ctx context.Context, tenantID int64) (*domain.TenantSLAStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantSLAStats), args.Error(1)
}

func (m *MockSLAStatsRepo) ApplyResponseSample(ctx context.Context, tenantID int64, at time.Time, fold domain.ResponseFold) (*domain.TenantSLAStats, error) {
	args := m.Called(ctx, tenantID, at, fold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantSLAStats), args.Error(1)
}

func (m *MockSLAStatsRepo) SetSchedule(ctx context.Context, tenantID int64, scheduleJSON *string, timeZone string) error {
	args := m.Called(ctx, tenantID, scheduleJSON, timeZone)
	return args.Error(0)
}

func TestRecordFirstReply(t *testing.T) {
	thresholds := sla.Thresholds{MinSamples: 2, MaxAvgSeconds: 7200}

	repo := new(MockSLAStatsRepo)
	tracker := sla.NewTracker(repo, thresholds, zap.NewNop())

	// Simulate the store: hold the aggregate locally and run the fold the
	// way ApplyResponseSample would inside its transaction. Run mutates the
	// returned stats in place so each call observes the folded state.
	var prevMean float64
	var prevCount int64
	applied := &domain.TenantSLAStats{TenantID: 7}
	repo.On("ApplyResponseSample", mock.Anything, int64(7), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			at := args.Get(2).(time.Time)
			fold := args.Get(3).(domain.ResponseFold)
			mean, count, badge := fold(prevMean, prevCount)
			prevMean, prevCount = mean, count
			applied.AvgBusinessHoursResponseTime = &mean
			applied.TotalResponseCount = count
			applied.QuickResponderBadge = badge
			applied.LastBadgeEvaluatedAt = &at
		}).
		Return(applied, nil)

	// One sample: fast, but below the sample-count floor.
	stats, err := tracker.RecordFirstReply(context.Background(), 7, 600)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalResponseCount)
	assert.Equal(t, float64(600), *stats.AvgBusinessHoursResponseTime)
	assert.False(t, stats.QuickResponderBadge)
	assert.NotNil(t, stats.LastBadgeEvaluatedAt)

	// Second sample crosses the floor and the mean stays under the ceiling.
	stats, err = tracker.RecordFirstReply(context.Background(), 7, 1800)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalResponseCount)
	assert.Equal(t, float64(1200), *stats.AvgBusinessHoursResponseTime)
	assert.True(t, stats.QuickResponderBadge)

	repo.AssertNumberOfCalls(t, "ApplyResponseSample", 2)
}
