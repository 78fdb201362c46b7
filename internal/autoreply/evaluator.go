// Package autoreply defines the trigger contract for automatic replies to
// inbound contact messages. Evaluation itself lives outside this core; the
// caller treats every failure as recoverable.
package autoreply

import (
	"context"
	"encoding/json"
	"time"

	"breederhub/internal/events"
)

// Evaluator decides whether an inbound message warrants an automatic reply
// and performs it. Implementations may fail; callers log and continue.
type Evaluator interface {
	Evaluate(ctx context.Context, tenantID, threadID, inboundSenderPartyID int64) error
}

// Noop never replies. Used when the feature is disabled for a deployment.
type Noop struct{}

var _ Evaluator = Noop{}

func (Noop) Evaluate(ctx context.Context, tenantID, threadID, inboundSenderPartyID int64) error {
	return nil
}

// EventEvaluator hands the trigger to the notification collaborator over the
// event bus; the consumer owns template selection, rate limiting, and the
// reply itself.
type EventEvaluator struct {
	pub events.Publisher
}

func NewEventEvaluator(pub events.Publisher) *EventEvaluator {
	return &EventEvaluator{pub: pub}
}

var _ Evaluator = (*EventEvaluator)(nil)

func (e *EventEvaluator) Evaluate(ctx context.Context, tenantID, threadID, inboundSenderPartyID int64) error {
	payload, err := json.Marshal(events.AutoReplyRequested{
		ThreadID:      threadID,
		SenderPartyID: inboundSenderPartyID,
	})
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, events.KeyAutoReplyRequested, events.Envelope{
		Meta: events.Meta{
			TenantID:   tenantID,
			OccurredAt: time.Now().UTC(),
		},
		Type:    events.KeyAutoReplyRequested,
		Payload: payload,
	})
}
