package domain

import (
	"context"
	"time"
)

// ThreadFilter narrows ListForTenant results.
type ThreadFilter struct {
	Archived *bool
	Flagged  *bool
	Limit    int
	Offset   int
}

// ThreadRepository defines persistence operations for threads.
//
// ClaimFirstInbound and ClaimFirstOrgReply are conditional updates: the
// store applies them only while the target column is still null and reports
// whether this caller won. Concurrent message submissions race on these, so
// a read-then-write would double-count; the condition belongs in the UPDATE.
type ThreadRepository interface {
	Create(ctx context.Context, t *Thread, participantPartyIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Thread, error)
	ListForTenant(ctx context.Context, tenantID int64, f ThreadFilter) ([]*Thread, error)
	TouchLastMessage(ctx context.Context, threadID int64, at time.Time) error
	SetArchived(ctx context.Context, threadID int64, archived bool) error
	SetFlagged(ctx context.Context, threadID int64, flagged bool) error
	ClaimFirstInbound(ctx context.Context, threadID int64, at time.Time) (bool, error)
	ClaimFirstOrgReply(ctx context.Context, threadID int64, at time.Time, responseSeconds, businessSeconds int64) (bool, error)
}

// ParticipantRepository defines operations around thread participants and
// their read watermarks.
type ParticipantRepository interface {
	ListForThread(ctx context.Context, threadID int64) ([]*Party, error)
	Get(ctx context.Context, threadID, partyID int64) (*ThreadParticipant, error)
	IsParticipant(ctx context.Context, threadID, partyID int64) (bool, error)
	// SetLastRead writes the watermark; nil marks the thread unread again.
	SetLastRead(ctx context.Context, threadID, partyID int64, at *time.Time) error
	// UnreadCount derives the count of messages from other senders created
	// after the participant's watermark (all of them when the watermark is nil).
	UnreadCount(ctx context.Context, threadID, partyID int64) (int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForThread(ctx context.Context, threadID int64, limit int) ([]*Message, error)
}

// PartyRepository defines persistence operations for parties.
type PartyRepository interface {
	Create(ctx context.Context, p *Party) error
	GetByID(ctx context.Context, id int64) (*Party, error)
	// OrgPartyID returns the tenant's organization-party identifier.
	OrgPartyID(ctx context.Context, tenantID int64) (int64, error)
}

// ResponseFold folds one response sample into the previous aggregate. It
// runs inside the store's transaction so the streaming update and the badge
// decision see a consistent snapshot.
type ResponseFold func(prevMean float64, prevCount int64) (mean float64, count int64, badge bool)

// SLAStatsRepository owns the per-tenant response-time aggregate.
type SLAStatsRepository interface {
	Get(ctx context.Context, tenantID int64) (*TenantSLAStats, error)
	// ApplyResponseSample atomically folds one sample into the aggregate and
	// stamps last_badge_evaluated_at, creating the row if it does not exist.
	ApplyResponseSample(ctx context.Context, tenantID int64, at time.Time, fold ResponseFold) (*TenantSLAStats, error)
	// SetSchedule stores the tenant's business-hours configuration.
	SetSchedule(ctx context.Context, tenantID int64, scheduleJSON *string, timeZone string) error
}

// PortalAccountRepository resolves contact emails to external-registry
// identity keys. Lookups return ErrNotFound for contacts without a portal
// account; callers treat that as a fan-out skip, not a failure.
type PortalAccountRepository interface {
	Create(ctx context.Context, a *PortalAccount) error
	IdentityKeyByEmail(ctx context.Context, tenantID int64, email string) (string, error)
}

// AuditLogRepository is the append-only sink for recovered side-channel
// failures.
type AuditLogRepository interface {
	Append(ctx context.Context, e *AuditEntry) error
	ListForTenant(ctx context.Context, tenantID int64, limit int) ([]*AuditEntry, error)
}

// Repositories bundles one store's implementations for wiring.
type Repositories struct {
	Threads        ThreadRepository
	Participants   ParticipantRepository
	Messages       MessageRepository
	Parties        PartyRepository
	SLAStats       SLAStatsRepository
	PortalAccounts PortalAccountRepository
	AuditLog       AuditLogRepository
}
