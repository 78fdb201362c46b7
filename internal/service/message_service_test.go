package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"breederhub/internal/domain"
	"breederhub/internal/events"
	"breederhub/internal/service"
	"breederhub/internal/sla"
)

const (
	testTenantID   = int64(1)
	orgPartyID     = int64(10)
	staffPartyID   = int64(11)
	contactPartyID = int64(20)
	testThreadID   = int64(100)
)

type messageEnv struct {
	threads   *MockThreadRepo
	parts     *MockParticipantRepo
	messages  *MockMessageRepo
	stats     *MockSLAStatsRepo
	portal    *MockPortalAccountRepo
	audit     *MockAuditRepo
	internal  *captureRegistry[int64]
	external  *captureRegistry[string]
	evaluator *fakeEvaluator
	svc       *service.MessageService
}

func newMessageEnv(t *testing.T) *messageEnv {
	t.Helper()
	env := &messageEnv{
		threads:   new(MockThreadRepo),
		parts:     new(MockParticipantRepo),
		messages:  new(MockMessageRepo),
		stats:     new(MockSLAStatsRepo),
		portal:    new(MockPortalAccountRepo),
		audit:     new(MockAuditRepo),
		internal:  &captureRegistry[int64]{},
		external:  &captureRegistry[string]{},
		evaluator: &fakeEvaluator{},
	}
	log := zap.NewNop()
	tracker := sla.NewTracker(env.stats, sla.Thresholds{MinSamples: 5, MaxAvgSeconds: 14400}, log)
	notifier := service.NewNotifier(env.internal, env.external, env.portal, env.audit, log)
	env.svc = service.NewMessageService(
		env.threads, env.parts, env.messages, env.stats, env.audit,
		fakeResolver{orgPartyID: orgPartyID}, tracker, notifier,
		env.evaluator, events.Noop{}, log,
	)
	return env
}

func openThread(firstInbound, firstReply *time.Time) *domain.Thread {
	return &domain.Thread{
		ID:              testThreadID,
		TenantID:        testTenantID,
		Subject:         "Inquiry about spring litter",
		FirstInboundAt:  firstInbound,
		FirstOrgReplyAt: firstReply,
	}
}

func contactEmail(s string) *string { return &s }

func threadParties() []*domain.Party {
	return []*domain.Party{
		{ID: orgPartyID, TenantID: testTenantID, Kind: domain.PartyOrganization, Name: "Willow Creek Kennels"},
		{ID: contactPartyID, TenantID: testTenantID, Kind: domain.PartyContact, Name: "Dana", Email: contactEmail("dana@example.com")},
	}
}

func (env *messageEnv) allowCreate(thread *domain.Thread) {
	env.threads.On("GetByID", mock.Anything, thread.ID).Return(thread, nil)
	env.parts.On("IsParticipant", mock.Anything, thread.ID, mock.Anything).Return(true, nil)
	env.messages.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Message).ID = 555
	}).Return(nil)
	env.threads.On("TouchLastMessage", mock.Anything, thread.ID, mock.Anything).Return(nil)
	env.parts.On("ListForThread", mock.Anything, thread.ID).Return(threadParties(), nil)
}

func TestCreateMessageFirstInbound(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.allowCreate(thread)
	env.threads.On("ClaimFirstInbound", mock.Anything, testThreadID, mock.Anything).Return(true, nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}
	msg, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Hi, is the merle puppy still available?",
	}, actor)

	assert.NoError(t, err)
	assert.Equal(t, int64(555), msg.ID)
	assert.NotNil(t, msg.SenderPartyID)
	assert.Equal(t, contactPartyID, *msg.SenderPartyID)

	env.threads.AssertCalled(t, "ClaimFirstInbound", mock.Anything, testThreadID, mock.Anything)
	env.threads.AssertNotCalled(t, "ClaimFirstOrgReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Auto-reply trigger and internal fan-out are detached.
	assert.Eventually(t, func() bool {
		return env.evaluator.calls.Load() == 1 && env.internal.broadcasts() == 1
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int64{orgPartyID, contactPartyID}, env.internal.lastKeys())
	// Contact message: nothing on the external registry.
	assert.Equal(t, 0, env.external.broadcasts())
}

func TestCreateMessageSecondInboundDoesNotReclaim(t *testing.T) {
	env := newMessageEnv(t)
	inbound := time.Now().Add(-time.Hour).UTC()
	thread := openThread(&inbound, nil)
	env.allowCreate(thread)
	// The conditional update no-ops once the column is set.
	env.threads.On("ClaimFirstInbound", mock.Anything, testThreadID, mock.Anything).Return(false, nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Just following up!",
	}, actor)

	assert.NoError(t, err)
	assert.Equal(t, inbound, *thread.FirstInboundAt, "losing the claim must not overwrite the recorded first inbound")
}

func TestCreateMessageOrgFirstReply(t *testing.T) {
	env := newMessageEnv(t)
	inbound := time.Now().Add(-2 * time.Hour).UTC()
	thread := openThread(&inbound, nil)
	env.allowCreate(thread)

	env.stats.On("Get", mock.Anything, testTenantID).Return(&domain.TenantSLAStats{
		TenantID: testTenantID,
		TimeZone: "UTC",
	}, nil)
	env.threads.On("ClaimFirstOrgReply", mock.Anything, testThreadID, mock.Anything,
		mock.MatchedBy(func(raw int64) bool { return raw >= 7199 && raw <= 7201 }),
		mock.MatchedBy(func(biz int64) bool { return biz >= 7199 && biz <= 7201 }),
	).Return(true, nil)
	applied := &domain.TenantSLAStats{TenantID: testTenantID, TotalResponseCount: 1}
	env.stats.On("ApplyResponseSample", mock.Anything, testTenantID, mock.Anything, mock.Anything).Return(applied, nil)
	env.portal.On("IdentityKeyByEmail", mock.Anything, testTenantID, "dana@example.com").Return("portal-abc", nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: orgPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "She is! Want to set up a visit?",
	}, actor)

	assert.NoError(t, err)
	env.threads.AssertCalled(t, "ClaimFirstOrgReply", mock.Anything, testThreadID, mock.Anything, mock.Anything, mock.Anything)
	env.stats.AssertCalled(t, "ApplyResponseSample", mock.Anything, testTenantID, mock.Anything, mock.Anything)

	// Org reply also reaches the external registry via the portal directory.
	assert.Eventually(t, func() bool {
		return env.external.broadcasts() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"portal-abc"}, env.external.lastKeys())
}

func TestCreateMessageOrgReplyAlreadyRecorded(t *testing.T) {
	env := newMessageEnv(t)
	inbound := time.Now().Add(-3 * time.Hour).UTC()
	replied := time.Now().Add(-time.Hour).UTC()
	thread := openThread(&inbound, &replied)
	env.allowCreate(thread)
	env.portal.On("IdentityKeyByEmail", mock.Anything, testTenantID, "dana@example.com").Return("portal-abc", nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: orgPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Following up with the contract.",
	}, actor)

	assert.NoError(t, err)
	// First-response history is immutable: no claim, no aggregate update.
	env.threads.AssertNotCalled(t, "ClaimFirstOrgReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.stats.AssertNotCalled(t, "ApplyResponseSample", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateMessageOrgReplyBeforeAnyInbound(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.allowCreate(thread)
	env.portal.On("IdentityKeyByEmail", mock.Anything, testTenantID, "dana@example.com").Return("portal-abc", nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: orgPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Welcome! Let us know if you have questions.",
	}, actor)

	assert.NoError(t, err)
	env.threads.AssertNotCalled(t, "ClaimFirstInbound", mock.Anything, mock.Anything, mock.Anything)
	env.threads.AssertNotCalled(t, "ClaimFirstOrgReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateMessageRaceLostSkipsTracker(t *testing.T) {
	env := newMessageEnv(t)
	inbound := time.Now().Add(-time.Hour).UTC()
	thread := openThread(&inbound, nil)
	env.allowCreate(thread)
	env.stats.On("Get", mock.Anything, testTenantID).Return(&domain.TenantSLAStats{TenantID: testTenantID, TimeZone: "UTC"}, nil)
	// Another concurrent reply won the conditional update.
	env.threads.On("ClaimFirstOrgReply", mock.Anything, testThreadID, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	env.portal.On("IdentityKeyByEmail", mock.Anything, testTenantID, "dana@example.com").Return("portal-abc", nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: orgPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Answering as well!",
	}, actor)

	assert.NoError(t, err)
	env.stats.AssertNotCalled(t, "ApplyResponseSample", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateMessagePersistFailureIsFatal(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)
	env.parts.On("IsParticipant", mock.Anything, testThreadID, contactPartyID).Return(true, nil)
	env.messages.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	actor := domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "hello?",
	}, actor)

	assert.Error(t, err)
	env.threads.AssertNotCalled(t, "ClaimFirstInbound", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, env.internal.broadcasts())
}

func TestCreateMessageAutoReplyFailureIsAudited(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.allowCreate(thread)
	env.threads.On("ClaimFirstInbound", mock.Anything, testThreadID, mock.Anything).Return(true, nil)
	env.evaluator.err = errors.New("evaluator unavailable")

	audited := make(chan struct{})
	env.audit.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.AuditEntry) bool {
		return e.Channel == domain.AuditChannelAutoReply && e.TenantID == testTenantID
	})).Run(func(mock.Arguments) {
		close(audited)
	}).Return(nil)

	actor := domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}
	_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
		ThreadID: testThreadID,
		Body:     "Do you ship to Oregon?",
	}, actor)

	// The send itself never surfaces evaluator failures.
	assert.NoError(t, err)
	select {
	case <-audited:
	case <-time.After(time.Second):
		t.Fatal("expected an audit entry for the failed auto-reply evaluation")
	}
}

func TestCreateMessageValidation(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)
	env.parts.On("IsParticipant", mock.Anything, testThreadID, contactPartyID).Return(true, nil)
	actor := domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}

	t.Run("EmptyBody", func(t *testing.T) {
		_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{ThreadID: testThreadID}, actor)
		assert.ErrorIs(t, err, service.ErrEmptyBody)
	})

	t.Run("AttachmentOnlyIsAllowed", func(t *testing.T) {
		env.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
		env.threads.On("TouchLastMessage", mock.Anything, testThreadID, mock.Anything).Return(nil)
		env.parts.On("ListForThread", mock.Anything, testThreadID).Return(threadParties(), nil)
		env.threads.On("ClaimFirstInbound", mock.Anything, testThreadID, mock.Anything).Return(true, nil)

		msg, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
			ThreadID: testThreadID,
			Attachment: &service.AttachmentInput{
				Name: "pedigree.pdf", Type: "application/pdf", Size: 120_000, Key: "att/1/pedigree.pdf",
			},
		}, actor)
		assert.NoError(t, err)
		assert.NotNil(t, msg.AttachmentKey)
	})

	t.Run("BodyTooLong", func(t *testing.T) {
		long := make([]rune, 5001)
		for i := range long {
			long[i] = 'a'
		}
		_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
			ThreadID: testThreadID,
			Body:     string(long),
		}, actor)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestCreateMessageAuthorization(t *testing.T) {
	t.Run("WrongTenant", func(t *testing.T) {
		env := newMessageEnv(t)
		thread := openThread(nil, nil)
		env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)

		_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
			ThreadID: testThreadID, Body: "hi",
		}, domain.Actor{TenantID: 999, PartyID: contactPartyID})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("NotAParticipant", func(t *testing.T) {
		env := newMessageEnv(t)
		thread := openThread(nil, nil)
		env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)
		env.parts.On("IsParticipant", mock.Anything, testThreadID, staffPartyID).Return(false, nil)

		_, err := env.svc.CreateMessage(context.Background(), service.MessageCreateInput{
			ThreadID: testThreadID, Body: "hi",
		}, domain.Actor{TenantID: testTenantID, PartyID: staffPartyID})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})
}

func TestCreateSystemMessage(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)
	env.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.threads.On("TouchLastMessage", mock.Anything, testThreadID, mock.Anything).Return(nil)
	env.parts.On("ListForThread", mock.Anything, testThreadID).Return(threadParties(), nil)

	msg, err := env.svc.CreateSystemMessage(context.Background(), testThreadID, "Thanks for reaching out! We reply within one business day.")
	assert.NoError(t, err)
	assert.Nil(t, msg.SenderPartyID)

	// System messages never drive SLA transitions or auto-replies.
	env.threads.AssertNotCalled(t, "ClaimFirstInbound", mock.Anything, mock.Anything, mock.Anything)
	env.threads.AssertNotCalled(t, "ClaimFirstOrgReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Eventually(t, func() bool { return env.internal.broadcasts() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), env.evaluator.calls.Load())
}

func TestListMessages(t *testing.T) {
	env := newMessageEnv(t)
	thread := openThread(nil, nil)
	env.threads.On("GetByID", mock.Anything, testThreadID).Return(thread, nil)
	env.parts.On("IsParticipant", mock.Anything, testThreadID, contactPartyID).Return(true, nil)
	sender := contactPartyID
	env.messages.On("ListForThread", mock.Anything, testThreadID, 50).Return([]*domain.Message{
		{ID: 1, ThreadID: testThreadID, SenderPartyID: &sender, Body: "first"},
		{ID: 2, ThreadID: testThreadID, SenderPartyID: &sender, Body: "second"},
	}, nil)

	msgs, err := env.svc.ListMessages(context.Background(), testThreadID, domain.Actor{TenantID: testTenantID, PartyID: contactPartyID}, 50)
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
}
