package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"breederhub/internal/domain"
)

// InternalRegistry pushes to staff subscribers keyed by party ID.
type InternalRegistry interface {
	Broadcast(keys []int64, payload any) int
}

// ExternalRegistry pushes to buyer-portal subscribers keyed by portal
// identity key.
type ExternalRegistry interface {
	Broadcast(keys []string, payload any) int
}

// AttachmentMeta is the attachment descriptor carried on live-update events.
type AttachmentMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Key  string `json:"key"`
}

// ThreadEvent is the payload pushed to both live-update registries when a
// message lands in a thread.
type ThreadEvent struct {
	Type          string          `json:"type"`
	ThreadID      int64           `json:"thread_id"`
	MessageID     int64           `json:"message_id"`
	SenderPartyID *int64          `json:"sender_party_id,omitempty"`
	Body          string          `json:"body"`
	CreatedAt     time.Time       `json:"created_at"`
	Attachment    *AttachmentMeta `json:"attachment,omitempty"`
}

func eventForMessage(m *domain.Message) ThreadEvent {
	evt := ThreadEvent{
		Type:          "message.created",
		ThreadID:      m.ThreadID,
		MessageID:     m.ID,
		SenderPartyID: m.SenderPartyID,
		Body:          m.Body,
		CreatedAt:     m.CreatedAt,
	}
	if m.AttachmentKey != nil {
		meta := &AttachmentMeta{Key: *m.AttachmentKey}
		if m.AttachmentName != nil {
			meta.Name = *m.AttachmentName
		}
		if m.AttachmentType != nil {
			meta.Type = *m.AttachmentType
		}
		if m.AttachmentSize != nil {
			meta.Size = *m.AttachmentSize
		}
		evt.Attachment = meta
	}
	return evt
}

// Notifier fans new-message events out to the two live-update registries.
// Both pushes are best-effort: the message is already durably persisted, so
// failures are logged and audited, never returned. The two registries share
// no transaction with each other or with persistence.
type Notifier struct {
	internal InternalRegistry
	external ExternalRegistry
	portal   domain.PortalAccountRepository
	audit    domain.AuditLogRepository
	log      *zap.Logger
}

func NewNotifier(
	internal InternalRegistry,
	external ExternalRegistry,
	portal domain.PortalAccountRepository,
	audit domain.AuditLogRepository,
	log *zap.Logger,
) *Notifier {
	return &Notifier{
		internal: internal,
		external: external,
		portal:   portal,
		audit:    audit,
		log:      log,
	}
}

// NotifyMessage pushes the event to the internal registry for every thread
// participant. When the sender is the organization it also pushes to the
// external registry for each non-sender participant whose email resolves to
// a portal identity key. Contacts without a portal account are skipped
// silently.
func (n *Notifier) NotifyMessage(
	ctx context.Context,
	thread *domain.Thread,
	msg *domain.Message,
	participants []*domain.Party,
	senderIsOrg bool,
) {
	evt := eventForMessage(msg)

	partyIDs := make([]int64, 0, len(participants))
	for _, p := range participants {
		partyIDs = append(partyIDs, p.ID)
	}
	n.internal.Broadcast(partyIDs, evt)

	if !senderIsOrg {
		return
	}

	var keys []string
	for _, p := range participants {
		if msg.SenderPartyID != nil && p.ID == *msg.SenderPartyID {
			continue
		}
		if p.Email == nil || *p.Email == "" {
			continue
		}
		key, err := n.portal.IdentityKeyByEmail(ctx, thread.TenantID, *p.Email)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			n.log.Warn("resolve portal identity",
				zap.Int64("thread_id", thread.ID),
				zap.Int64("party_id", p.ID),
				zap.Error(err),
			)
			n.auditFailure(ctx, thread, p.ID, domain.AuditChannelFanOutExternal, err.Error())
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) > 0 {
		n.external.Broadcast(keys, evt)
	}
}

func (n *Notifier) auditFailure(ctx context.Context, thread *domain.Thread, partyID int64, channel, reason string) {
	entry := &domain.AuditEntry{
		TenantID: thread.TenantID,
		Channel:  channel,
		PartyID:  &partyID,
		ThreadID: &thread.ID,
		Reason:   reason,
	}
	if err := n.audit.Append(ctx, entry); err != nil {
		n.log.Warn("append audit entry", zap.Error(err))
	}
}
