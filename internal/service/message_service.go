package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"breederhub/internal/autoreply"
	"breederhub/internal/domain"
	"breederhub/internal/events"
	"breederhub/internal/identity"
	"breederhub/internal/schedule"
	"breederhub/internal/sla"
)

// Sentinel errors used by handlers to map to HTTP status codes.
var (
	ErrForbidden = errors.New("forbidden")
	ErrEmptyBody = errors.New("message body cannot be empty")
)

const maxBodyRunes = 5000

// sideEffectTimeout bounds each detached side-channel task so a stuck
// registry or broker cannot leak goroutines.
const sideEffectTimeout = 10 * time.Second

type MessageService struct {
	threads      domain.ThreadRepository
	participants domain.ParticipantRepository
	messages     domain.MessageRepository
	stats        domain.SLAStatsRepository
	audit        domain.AuditLogRepository
	identity     identity.Resolver
	tracker      *sla.Tracker
	notifier     *Notifier
	autoReply    autoreply.Evaluator
	bus          events.Publisher
	log          *zap.Logger

	now func() time.Time
}

func NewMessageService(
	threads domain.ThreadRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	stats domain.SLAStatsRepository,
	audit domain.AuditLogRepository,
	resolver identity.Resolver,
	tracker *sla.Tracker,
	notifier *Notifier,
	autoReply autoreply.Evaluator,
	bus events.Publisher,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		threads:      threads,
		participants: participants,
		messages:     messages,
		stats:        stats,
		audit:        audit,
		identity:     resolver,
		tracker:      tracker,
		notifier:     notifier,
		autoReply:    autoReply,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

type AttachmentInput struct {
	Name string
	Type string
	Size int64
	Key  string
}

type MessageCreateInput struct {
	ThreadID   int64
	Body       string
	Attachment *AttachmentInput
}

// CreateMessage persists a message and runs the response-tracking machinery
// around it. Only the message insert itself can fail the call; SLA fields,
// the tenant aggregate, fan-out, auto-reply, and event publishing are
// enrichment and degrade silently.
func (s *MessageService) CreateMessage(
	ctx context.Context,
	in MessageCreateInput,
	actor domain.Actor,
) (*domain.Message, error) {
	thread, err := s.authorizedThread(ctx, in.ThreadID, actor)
	if err != nil {
		return nil, err
	}

	sender := actor.PartyID
	msg, err := s.persist(ctx, thread, in, &sender)
	if err != nil {
		return nil, err
	}

	s.afterPersist(ctx, thread, msg)
	return msg, nil
}

// CreateSystemMessage appends a system-authored message (nil sender) to a
// thread on behalf of a collaborator such as the auto-reply worker. System
// messages never participate in SLA transitions.
func (s *MessageService) CreateSystemMessage(ctx context.Context, threadID int64, body string) (*domain.Message, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if thread == nil {
		return nil, domain.ErrNotFound
	}

	msg, err := s.persist(ctx, thread, MessageCreateInput{ThreadID: threadID, Body: body}, nil)
	if err != nil {
		return nil, err
	}

	s.afterPersist(ctx, thread, msg)
	return msg, nil
}

func (s *MessageService) authorizedThread(ctx context.Context, threadID int64, actor domain.Actor) (*domain.Thread, error) {
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

func (s *MessageService) persist(ctx context.Context, thread *domain.Thread, in MessageCreateInput, sender *int64) (*domain.Message, error) {
	if len([]rune(in.Body)) > maxBodyRunes {
		return nil, fmt.Errorf("%w: message body exceeds %d characters", domain.ErrInvalidInput, maxBodyRunes)
	}
	if in.Body == "" && in.Attachment == nil {
		return nil, ErrEmptyBody
	}

	msg := &domain.Message{
		ThreadID:      thread.ID,
		SenderPartyID: sender,
		Body:          in.Body,
		CreatedAt:     s.now().UTC(),
	}
	if a := in.Attachment; a != nil {
		msg.AttachmentName = &a.Name
		msg.AttachmentType = &a.Type
		msg.AttachmentSize = &a.Size
		msg.AttachmentKey = &a.Key
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.threads.TouchLastMessage(ctx, thread.ID, msg.CreatedAt); err != nil {
		s.log.Warn("touch last message", zap.Int64("thread_id", thread.ID), zap.Error(err))
	}
	return msg, nil
}

// afterPersist runs everything that happens once the message is durable:
// the SLA transition inline (it shares the request's storage round-trip and
// survives client cancellation), then the detached best-effort side channels.
func (s *MessageService) afterPersist(ctx context.Context, thread *domain.Thread, msg *domain.Message) {
	senderIsOrg := s.applySLATransition(context.WithoutCancel(ctx), thread, msg)

	s.dispatch(domain.AuditChannelFanOutInternal, thread, msg.SenderPartyID, func(ctx context.Context) error {
		participants, err := s.participants.ListForThread(ctx, thread.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		s.notifier.NotifyMessage(ctx, thread, msg, participants, senderIsOrg)
		return nil
	})

	s.dispatch(domain.AuditChannelEvents, thread, msg.SenderPartyID, func(ctx context.Context) error {
		payload, err := json.Marshal(events.MessageCreated{
			ThreadID:      msg.ThreadID,
			MessageID:     msg.ID,
			SenderPartyID: msg.SenderPartyID,
			Body:          msg.Body,
			CreatedAt:     msg.CreatedAt,
		})
		if err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.KeyMessageCreated, events.Envelope{
			Meta:    events.Meta{TenantID: thread.TenantID, OccurredAt: msg.CreatedAt},
			Type:    events.KeyMessageCreated,
			Payload: payload,
		})
	})
}

// applySLATransition advances the thread's response-tracking state for this
// message and reports whether the sender is the tenant's organization
// identity. Every outcome other than a persisted message is allowed to
// degrade: identity-resolution or storage errors log and skip tracking.
func (s *MessageService) applySLATransition(ctx context.Context, thread *domain.Thread, msg *domain.Message) bool {
	if msg.SenderPartyID == nil {
		return false
	}
	sender := *msg.SenderPartyID

	orgPartyID, err := s.identity.OrgPartyID(ctx, thread.TenantID)
	if err != nil {
		s.log.Warn("resolve org party; skipping response tracking",
			zap.Int64("tenant_id", thread.TenantID),
			zap.Error(err),
		)
		return false
	}

	if sender != orgPartyID {
		claimed, err := s.threads.ClaimFirstInbound(ctx, thread.ID, msg.CreatedAt)
		if err != nil {
			s.log.Warn("claim first inbound", zap.Int64("thread_id", thread.ID), zap.Error(err))
		} else if claimed {
			thread.FirstInboundAt = &msg.CreatedAt
		}
		s.triggerAutoReply(thread, sender)
		return false
	}

	// Organization reply. Re-read the thread so a first-inbound claim that
	// raced this request is visible; the conditional update below still
	// decides the winner.
	fresh, err := s.threads.GetByID(ctx, thread.ID)
	if err != nil || fresh == nil {
		s.log.Warn("reload thread for response tracking", zap.Int64("thread_id", thread.ID), zap.Error(err))
		return true
	}
	if fresh.FirstInboundAt == nil || fresh.FirstOrgReplyAt != nil {
		return true
	}

	repliedAt := msg.CreatedAt
	rawSeconds := int64(repliedAt.Sub(*fresh.FirstInboundAt) / time.Second)

	var scheduleJSON *string
	timeZone := ""
	if stats, err := s.stats.Get(ctx, thread.TenantID); err != nil {
		s.log.Warn("load business-hours config; using raw elapsed time",
			zap.Int64("tenant_id", thread.TenantID),
			zap.Error(err),
		)
	} else if stats != nil {
		scheduleJSON = stats.ScheduleJSON
		timeZone = stats.TimeZone
	}
	businessSeconds, degraded := schedule.SecondsFromConfig(*fresh.FirstInboundAt, repliedAt, scheduleJSON, timeZone)
	if degraded {
		s.log.Warn("malformed business-hours config; using raw elapsed time",
			zap.Int64("tenant_id", thread.TenantID),
		)
	}

	claimed, err := s.threads.ClaimFirstOrgReply(ctx, thread.ID, repliedAt, rawSeconds, businessSeconds)
	if err != nil {
		s.log.Warn("claim first org reply", zap.Int64("thread_id", thread.ID), zap.Error(err))
		return true
	}
	if !claimed {
		// A concurrent reply won the claim; expected under racing sends.
		return true
	}

	if _, err := s.tracker.RecordFirstReply(ctx, thread.TenantID, businessSeconds); err != nil {
		s.log.Warn("record first reply",
			zap.Int64("tenant_id", thread.TenantID),
			zap.Int64("thread_id", thread.ID),
			zap.Error(err),
		)
	}
	return true
}

func (s *MessageService) triggerAutoReply(thread *domain.Thread, senderPartyID int64) {
	s.dispatch(domain.AuditChannelAutoReply, thread, &senderPartyID, func(ctx context.Context) error {
		return s.autoReply.Evaluate(ctx, thread.TenantID, thread.ID, senderPartyID)
	})
}

// dispatch runs fn on a detached goroutine with its own deadline and error
// boundary. Failures land in the audit log; nothing propagates to the
// request that triggered the side effect.
func (s *MessageService) dispatch(channel string, thread *domain.Thread, partyID *int64, fn func(ctx context.Context) error) {
	threadID := thread.ID
	tenantID := thread.TenantID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.recordFailure(ctx, channel, tenantID, threadID, partyID, fmt.Sprintf("panic: %v", r))
			}
		}()

		if err := fn(ctx); err != nil {
			s.recordFailure(ctx, channel, tenantID, threadID, partyID, err.Error())
		}
	}()
}

func (s *MessageService) recordFailure(ctx context.Context, channel string, tenantID, threadID int64, partyID *int64, reason string) {
	s.log.Warn("side channel failed",
		zap.String("channel", channel),
		zap.Int64("tenant_id", tenantID),
		zap.Int64("thread_id", threadID),
		zap.String("reason", reason),
	)
	entry := &domain.AuditEntry{
		TenantID: tenantID,
		Channel:  channel,
		PartyID:  partyID,
		ThreadID: &threadID,
		Reason:   reason,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn("append audit entry", zap.Error(err))
	}
}

// ListMessages returns a thread's messages in chronological order.
func (s *MessageService) ListMessages(
	ctx context.Context,
	threadID int64,
	actor domain.Actor,
	limit int,
) ([]*domain.Message, error) {
	if _, err := s.authorizedThread(ctx, threadID, actor); err != nil {
		return nil, err
	}
	return s.messages.ListForThread(ctx, threadID, limit)
}
