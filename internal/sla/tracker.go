// Package sla maintains the per-tenant first-response statistic and the
// quick-responder badge derived from it.
package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"breederhub/internal/domain"
)

// Thresholds configure badge eligibility. They are deployment constants,
// never stored per tenant.
type Thresholds struct {
	// MinSamples is the minimum number of recorded first replies before the
	// badge can be granted at all.
	MinSamples int64
	// MaxAvgSeconds is the largest business-hours mean that still qualifies.
	MaxAvgSeconds float64
}

// NextMean applies the streaming-mean update for one new sample. It never
// re-sums history, which keeps long-lived tenants numerically stable.
func NextMean(prevMean float64, prevCount int64, value float64) (float64, int64) {
	count := prevCount + 1
	return prevMean + (value-prevMean)/float64(count), count
}

// QualifiesForBadge is a pure function of the aggregate: true only when the
// sample count meets the minimum and the mean is at or below the ceiling.
func QualifiesForBadge(mean float64, count int64, t Thresholds) bool {
	return count >= t.MinSamples && mean <= t.MaxAvgSeconds
}

// Tracker folds first-reply samples into the tenant aggregate.
type Tracker struct {
	stats      domain.SLAStatsRepository
	thresholds Thresholds
	now        func() time.Time
	log        *zap.Logger
}

func NewTracker(stats domain.SLAStatsRepository, thresholds Thresholds, log *zap.Logger) *Tracker {
	return &Tracker{
		stats:      stats,
		thresholds: thresholds,
		now:        time.Now,
		log:        log,
	}
}

// RecordFirstReply records one business-hours-adjusted response duration.
// Call it only after winning the thread's first-reply claim; the storage
// guard makes that exactly-once, so the aggregate never double-counts a
// thread. last_badge_evaluated_at is stamped even when the badge value does
// not change, so badge currency can be audited.
func (t *Tracker) RecordFirstReply(ctx context.Context, tenantID int64, businessSeconds int64) (*domain.TenantSLAStats, error) {
	sample := float64(businessSeconds)
	stats, err := t.stats.ApplyResponseSample(ctx, tenantID, t.now().UTC(), func(prevMean float64, prevCount int64) (float64, int64, bool) {
		mean, count := NextMean(prevMean, prevCount, sample)
		return mean, count, QualifiesForBadge(mean, count, t.thresholds)
	})
	if err != nil {
		return nil, fmt.Errorf("apply response sample: %w", err)
	}

	t.log.Info("recorded first reply",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("business_seconds", businessSeconds),
		zap.Int64("total_responses", stats.TotalResponseCount),
		zap.Bool("quick_responder_badge", stats.QuickResponderBadge),
	)
	return stats, nil
}
