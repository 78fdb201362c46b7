package domain

import "time"

// PartyKind distinguishes the identities that can take part in a thread.
type PartyKind string

const (
	PartyOrganization PartyKind = "organization"
	PartyStaff        PartyKind = "staff"
	PartyContact      PartyKind = "contact"
)

// Party is a tenant-scoped identity: the breeder organization itself, one of
// its staff members, or an external contact (buyer, marketplace inquiry).
type Party struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  int64     `db:"tenant_id" json:"tenant_id"`
	Kind      PartyKind `db:"kind" json:"kind"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsOrganization reports whether the party is the tenant's organization identity.
func (p *Party) IsOrganization() bool {
	return p.Kind == PartyOrganization
}

// Thread represents one conversation. The four first-response fields are
// SLA history: each is written at most once for the lifetime of the thread
// and never recomputed afterwards.
type Thread struct {
	ID            int64      `db:"id"`
	TenantID      int64      `db:"tenant_id"`
	Subject       string     `db:"subject"`
	IsArchived    bool       `db:"is_archived"`
	IsFlagged     bool       `db:"is_flagged"`
	LastMessageAt *time.Time `db:"last_message_at"`

	FirstInboundAt            *time.Time `db:"first_inbound_at"`
	FirstOrgReplyAt           *time.Time `db:"first_org_reply_at"`
	ResponseTimeSeconds       *int64     `db:"response_time_seconds"`
	BusinessHoursResponseTime *int64     `db:"business_hours_response_time"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ThreadParticipant links a party into a thread. LastReadAt is a read
// watermark, not a per-message flag: unread counts are derived by comparing
// message timestamps against it.
type ThreadParticipant struct {
	ThreadID   int64      `db:"thread_id"`
	PartyID    int64      `db:"party_id"`
	LastReadAt *time.Time `db:"last_read_at"`
	JoinedAt   *time.Time `db:"joined_at"`
}

// Message is a single entry in a thread, immutable once created. A nil
// SenderPartyID marks a system-authored message. The attachment descriptor
// points at an externally stored file; this core never touches file bytes.
type Message struct {
	ID            int64     `db:"id"`
	ThreadID      int64     `db:"thread_id"`
	SenderPartyID *int64    `db:"sender_party_id"`
	Body          string    `db:"body"`
	CreatedAt     time.Time `db:"created_at"`

	AttachmentName *string `db:"attachment_name"`
	AttachmentType *string `db:"attachment_type"`
	AttachmentSize *int64  `db:"attachment_size"`
	AttachmentKey  *string `db:"attachment_key"`
}

// TenantSLAStats is the per-tenant response-time aggregate plus the tenant's
// business-hours configuration. The statistic fields form streaming state:
// they are folded forward one first-reply sample at a time and never
// recomputed from message history.
type TenantSLAStats struct {
	TenantID                     int64      `db:"tenant_id"`
	AvgBusinessHoursResponseTime *float64   `db:"avg_business_hours_response_time"`
	TotalResponseCount           int64      `db:"total_response_count"`
	QuickResponderBadge          bool       `db:"quick_responder_badge"`
	LastBadgeEvaluatedAt         *time.Time `db:"last_badge_evaluated_at"`

	ScheduleJSON *string `db:"schedule_json"`
	TimeZone     string  `db:"time_zone"`
}

// PortalAccount maps an external contact's email to the identity key used to
// address the external live-update registry. Provisioning of these rows is
// owned by the portal-account collaborator.
type PortalAccount struct {
	TenantID    int64     `db:"tenant_id"`
	Email       string    `db:"email"`
	IdentityKey string    `db:"identity_key"`
	CreatedAt   time.Time `db:"created_at"`
}

// AuditEntry records a recovered failure on one of the best-effort side
// channels (fan-out, auto-reply evaluation, event publishing).
type AuditEntry struct {
	ID        int64     `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	Channel   string    `db:"channel"`
	PartyID   *int64    `db:"party_id"`
	ThreadID  *int64    `db:"thread_id"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

// Actor is the already-resolved tenant and acting party for a request.
// Resolution happens upstream; this core trusts the pair it is handed.
type Actor struct {
	TenantID int64
	PartyID  int64
}

// Audit channels.
const (
	AuditChannelFanOutInternal = "realtime_internal"
	AuditChannelFanOutExternal = "realtime_external"
	AuditChannelAutoReply      = "auto_reply"
	AuditChannelEvents         = "events"
)
