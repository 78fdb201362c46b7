// Package events hands messaging events to downstream collaborators (email
// notifier, auto-reply worker) over an AMQP topic exchange. Delivery is
// best-effort from this core's perspective; retries belong to the consumer.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Routing keys published by the messaging core.
const (
	KeyMessageCreated     = "messaging.message.created"
	KeyAutoReplyRequested = "messaging.autoreply.requested"
)

// KeyAutoReplyComposed is published by the auto-reply worker once it has a
// reply body ready; the core consumes it and appends a system message.
const KeyAutoReplyComposed = "messaging.autoreply.composed"

// Meta identifies one event instance.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	TenantID      int64     `json:"tenant_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Envelope is the wire shape for every published event.
type Envelope struct {
	Meta    Meta            `json:"meta"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageCreated is the payload for KeyMessageCreated.
type MessageCreated struct {
	ThreadID      int64     `json:"thread_id"`
	MessageID     int64     `json:"message_id"`
	SenderPartyID *int64    `json:"sender_party_id,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// AutoReplyRequested is the payload for KeyAutoReplyRequested.
type AutoReplyRequested struct {
	ThreadID      int64 `json:"thread_id"`
	SenderPartyID int64 `json:"sender_party_id"`
}

// AutoReplyComposed is the payload for KeyAutoReplyComposed.
type AutoReplyComposed struct {
	ThreadID int64  `json:"thread_id"`
	Body     string `json:"body"`
}

// Publisher publishes envelopes under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Noop discards every event; used when no broker is configured.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) Publish(ctx context.Context, key string, env Envelope) error { return nil }
func (Noop) Close() error                                                { return nil }
