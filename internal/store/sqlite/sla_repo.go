package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breederhub/internal/domain"
)

type SLAStatsRepo struct {
	db *sql.DB
}

func NewSLAStatsRepo(db *sql.DB) *SLAStatsRepo {
	return &SLAStatsRepo{db: db}
}

var _ domain.SLAStatsRepository = (*SLAStatsRepo)(nil)

func (r *SLAStatsRepo) Get(ctx context.Context, tenantID int64) (*domain.TenantSLAStats, error) {
	s := &domain.TenantSLAStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, avg_business_hours_response_time, total_response_count,
			quick_responder_badge, last_badge_evaluated_at, schedule_json, time_zone
		FROM tenant_sla_stats
		WHERE tenant_id = ?
	`, tenantID).Scan(
		&s.TenantID,
		&s.AvgBusinessHoursResponseTime,
		&s.TotalResponseCount,
		&s.QuickResponderBadge,
		&s.LastBadgeEvaluatedAt,
		&s.ScheduleJSON,
		&s.TimeZone,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sla stats: %w", err)
	}
	return s, nil
}

// ApplyResponseSample folds one first-reply sample into the tenant aggregate.
// The read, fold, and write happen in one transaction so concurrent replies
// for the same tenant serialize rather than lose samples.
func (r *SLAStatsRepo) ApplyResponseSample(ctx context.Context, tenantID int64, at time.Time, fold domain.ResponseFold) (*domain.TenantSLAStats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO tenant_sla_stats (tenant_id) VALUES (?)
	`, tenantID); err != nil {
		return nil, fmt.Errorf("ensure sla stats row: %w", err)
	}

	var prevMean sql.NullFloat64
	var prevCount int64
	if err := tx.QueryRowContext(ctx, `
		SELECT avg_business_hours_response_time, total_response_count
		FROM tenant_sla_stats
		WHERE tenant_id = ?
	`, tenantID).Scan(&prevMean, &prevCount); err != nil {
		return nil, fmt.Errorf("read sla aggregate: %w", err)
	}

	mean, count, badge := fold(prevMean.Float64, prevCount)
	stamp := at.UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tenant_sla_stats
		SET avg_business_hours_response_time = ?,
		    total_response_count = ?,
		    quick_responder_badge = ?,
		    last_badge_evaluated_at = ?
		WHERE tenant_id = ?
	`, mean, count, badge, stamp, tenantID); err != nil {
		return nil, fmt.Errorf("write sla aggregate: %w", err)
	}

	s := &domain.TenantSLAStats{}
	if err := tx.QueryRowContext(ctx, `
		SELECT tenant_id, avg_business_hours_response_time, total_response_count,
			quick_responder_badge, last_badge_evaluated_at, schedule_json, time_zone
		FROM tenant_sla_stats
		WHERE tenant_id = ?
	`, tenantID).Scan(
		&s.TenantID,
		&s.AvgBusinessHoursResponseTime,
		&s.TotalResponseCount,
		&s.QuickResponderBadge,
		&s.LastBadgeEvaluatedAt,
		&s.ScheduleJSON,
		&s.TimeZone,
	); err != nil {
		return nil, fmt.Errorf("reload sla stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (r *SLAStatsRepo) SetSchedule(ctx context.Context, tenantID int64, scheduleJSON *string, timeZone string) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_sla_stats (tenant_id, schedule_json, time_zone)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET schedule_json = excluded.schedule_json, time_zone = excluded.time_zone
	`, tenantID, scheduleJSON, timeZone); err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	return nil
}
