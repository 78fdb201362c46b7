package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"breederhub/internal/domain"
	"breederhub/internal/schedule"
)

// SLAService exposes the tenant's response-time aggregate and its
// business-hours configuration.
type SLAService struct {
	stats domain.SLAStatsRepository
	log   *zap.Logger
}

func NewSLAService(stats domain.SLAStatsRepository, log *zap.Logger) *SLAService {
	return &SLAService{stats: stats, log: log}
}

// StatsView is the read model for the tenant's aggregate. A tenant with no
// recorded first replies gets the zero aggregate, not an error.
type StatsView struct {
	TenantID                     int64      `json:"tenant_id"`
	AvgBusinessHoursResponseTime *float64   `json:"avg_business_hours_response_time"`
	TotalResponseCount           int64      `json:"total_response_count"`
	QuickResponderBadge          bool       `json:"quick_responder_badge"`
	LastBadgeEvaluatedAt         *time.Time `json:"last_badge_evaluated_at,omitempty"`
	TimeZone                     string     `json:"time_zone"`
	ScheduleJSON                 *string    `json:"schedule,omitempty"`
}

func (s *SLAService) Stats(ctx context.Context, actor domain.Actor) (*StatsView, error) {
	stats, err := s.stats.Get(ctx, actor.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get sla stats: %w", err)
	}
	if stats == nil {
		return &StatsView{TenantID: actor.TenantID, TimeZone: "UTC"}, nil
	}
	return &StatsView{
		TenantID:                     stats.TenantID,
		AvgBusinessHoursResponseTime: stats.AvgBusinessHoursResponseTime,
		TotalResponseCount:           stats.TotalResponseCount,
		QuickResponderBadge:          stats.QuickResponderBadge,
		LastBadgeEvaluatedAt:         stats.LastBadgeEvaluatedAt,
		TimeZone:                     stats.TimeZone,
		ScheduleJSON:                 stats.ScheduleJSON,
	}, nil
}

// UpdateSchedule validates and stores the tenant's business-hours schedule.
// Validation happens here so malformed configuration is rejected at write
// time; the response-time calculation still degrades gracefully if a bad
// value reaches it by another path.
func (s *SLAService) UpdateSchedule(ctx context.Context, actor domain.Actor, scheduleJSON *string, timeZone string) error {
	if timeZone == "" {
		timeZone = "UTC"
	}
	if _, err := time.LoadLocation(timeZone); err != nil {
		return fmt.Errorf("%w: unknown time zone %q", domain.ErrInvalidInput, timeZone)
	}
	if scheduleJSON != nil {
		if _, err := schedule.Parse(*scheduleJSON); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	if err := s.stats.SetSchedule(ctx, actor.TenantID, scheduleJSON, timeZone); err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	return nil
}
