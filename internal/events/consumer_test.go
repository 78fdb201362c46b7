package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"breederhub/internal/domain"
)

type fakePoster struct {
	threadID int64
	body     string
	calls    int
	err      error
}

func (f *fakePoster) CreateSystemMessage(ctx context.Context, threadID int64, body string) (*domain.Message, error) {
	f.calls++
	f.threadID = threadID
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Message{ThreadID: threadID, Body: body}, nil
}

func composedDelivery(t *testing.T, threadID int64, body string) []byte {
	t.Helper()
	payload, err := json.Marshal(AutoReplyComposed{ThreadID: threadID, Body: body})
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{
		Meta:    Meta{ID: "evt-1", TenantID: 3, OccurredAt: time.Now().UTC()},
		Type:    KeyAutoReplyComposed,
		Payload: payload,
	})
	require.NoError(t, err)
	return raw
}

func TestConsumerHandlePostsSystemMessage(t *testing.T) {
	poster := &fakePoster{}
	c := &Consumer{poster: poster, log: zap.NewNop()}

	err := c.handle(context.Background(), composedDelivery(t, 42, "Thanks for reaching out!"))

	assert.NoError(t, err)
	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, int64(42), poster.threadID)
	assert.Equal(t, "Thanks for reaching out!", poster.body)
}

func TestConsumerHandleDropsMalformed(t *testing.T) {
	poster := &fakePoster{}
	c := &Consumer{poster: poster, log: zap.NewNop()}

	// Garbage, wrong payload shape, and incomplete payloads are all dropped
	// without reaching the poster and without requeue.
	assert.NoError(t, c.handle(context.Background(), []byte("not json")))

	raw, err := json.Marshal(Envelope{
		Meta:    Meta{ID: "evt-2", TenantID: 3},
		Type:    KeyAutoReplyComposed,
		Payload: json.RawMessage(`"just a string"`),
	})
	require.NoError(t, err)
	assert.NoError(t, c.handle(context.Background(), raw))

	assert.NoError(t, c.handle(context.Background(), composedDelivery(t, 42, "")))
	assert.NoError(t, c.handle(context.Background(), composedDelivery(t, 0, "body")))

	assert.Equal(t, 0, poster.calls)
}

func TestConsumerHandlePosterFailurePropagates(t *testing.T) {
	poster := &fakePoster{err: errors.New("db down")}
	c := &Consumer{poster: poster, log: zap.NewNop()}

	err := c.handle(context.Background(), composedDelivery(t, 42, "hello"))

	assert.Error(t, err)
	assert.Equal(t, 1, poster.calls)
}
