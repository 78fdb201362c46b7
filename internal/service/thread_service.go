package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"breederhub/internal/domain"
)

type ThreadService struct {
	threads      domain.ThreadRepository
	participants domain.ParticipantRepository
	log          *zap.Logger

	now func() time.Time
}

func NewThreadService(
	threads domain.ThreadRepository,
	participants domain.ParticipantRepository,
	log *zap.Logger,
) *ThreadService {
	return &ThreadService{
		threads:      threads,
		participants: participants,
		log:          log,
		now:          time.Now,
	}
}

type ThreadCreateInput struct {
	Subject             string
	ParticipantPartyIDs []int64
}

// ThreadSummary is a thread with the viewer's derived unread count attached.
// The count is never stored; it is recomputed from the watermark per listing.
type ThreadSummary struct {
	*domain.Thread
	UnreadCount int `json:"unread_count"`
}

func (s *ThreadService) CreateThread(
	ctx context.Context,
	in ThreadCreateInput,
	actor domain.Actor,
) (*domain.Thread, error) {
	if len(in.ParticipantPartyIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", domain.ErrInvalidInput)
	}

	// Include the creator, deduplicated.
	uniqueIDs := make([]int64, 0, len(in.ParticipantPartyIDs)+1)
	seen := map[int64]struct{}{actor.PartyID: {}}
	uniqueIDs = append(uniqueIDs, actor.PartyID)
	for _, id := range in.ParticipantPartyIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	thread := &domain.Thread{
		TenantID: actor.TenantID,
		Subject:  in.Subject,
	}
	if err := s.threads.Create(ctx, thread, uniqueIDs); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// ListForTenant returns the tenant's threads with the viewer's unread counts.
func (s *ThreadService) ListForTenant(
	ctx context.Context,
	f domain.ThreadFilter,
	actor domain.Actor,
) ([]*ThreadSummary, error) {
	threads, err := s.threads.ListForTenant(ctx, actor.TenantID, f)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	summaries := make([]*ThreadSummary, 0, len(threads))
	for _, t := range threads {
		unread, err := s.participants.UnreadCount(ctx, t.ID, actor.PartyID)
		if err != nil {
			// A failed count must not take down the listing.
			s.log.Warn("unread count", zap.Int64("thread_id", t.ID), zap.Error(err))
			unread = 0
		}
		summaries = append(summaries, &ThreadSummary{Thread: t, UnreadCount: unread})
	}
	return summaries, nil
}

func (s *ThreadService) GetThread(
	ctx context.Context,
	threadID int64,
	actor domain.Actor,
) (*ThreadSummary, error) {
	thread, err := s.authorized(ctx, threadID, actor)
	if err != nil {
		return nil, err
	}
	unread, err := s.participants.UnreadCount(ctx, threadID, actor.PartyID)
	if err != nil {
		s.log.Warn("unread count", zap.Int64("thread_id", threadID), zap.Error(err))
		unread = 0
	}
	return &ThreadSummary{Thread: thread, UnreadCount: unread}, nil
}

// MarkRead advances the viewer's watermark to now. Messages existing at this
// instant become read; later messages from other senders count as unread
// again, one per message.
func (s *ThreadService) MarkRead(ctx context.Context, threadID int64, actor domain.Actor) error {
	if _, err := s.authorized(ctx, threadID, actor); err != nil {
		return err
	}
	at := s.now().UTC()
	return s.participants.SetLastRead(ctx, threadID, actor.PartyID, &at)
}

// MarkUnread clears the viewer's watermark, restoring every message from
// other senders to unread.
func (s *ThreadService) MarkUnread(ctx context.Context, threadID int64, actor domain.Actor) error {
	if _, err := s.authorized(ctx, threadID, actor); err != nil {
		return err
	}
	return s.participants.SetLastRead(ctx, threadID, actor.PartyID, nil)
}

func (s *ThreadService) UnreadCount(ctx context.Context, threadID int64, actor domain.Actor) (int, error) {
	if _, err := s.authorized(ctx, threadID, actor); err != nil {
		return 0, err
	}
	return s.participants.UnreadCount(ctx, threadID, actor.PartyID)
}

// SetArchived archives or unarchives a thread. Threads are never deleted.
func (s *ThreadService) SetArchived(ctx context.Context, threadID int64, archived bool, actor domain.Actor) error {
	if _, err := s.authorized(ctx, threadID, actor); err != nil {
		return err
	}
	return s.threads.SetArchived(ctx, threadID, archived)
}

func (s *ThreadService) SetFlagged(ctx context.Context, threadID int64, flagged bool, actor domain.Actor) error {
	if _, err := s.authorized(ctx, threadID, actor); err != nil {
		return err
	}
	return s.threads.SetFlagged(ctx, threadID, flagged)
}

func (s *ThreadService) authorized(ctx context.Context, threadID int64, actor domain.Actor) (*domain.Thread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if thread == nil || thread.TenantID != actor.TenantID {
		return nil, domain.ErrNotFound
	}
	isParticipant, err := s.participants.IsParticipant(ctx, threadID, actor.PartyID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return nil, ErrForbidden
	}
	return thread, nil
}
