package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"breederhub/internal/domain"
)

type MockThreadRepo struct {
	mock.Mock
}

func (m *MockThreadRepo) Create(ctx context.Context, t *domain.Thread, participantPartyIDs []int64) error {
	args := m.Called(ctx, t, participantPartyIDs)
	return args.Error(0)
}

func (m *MockThreadRepo) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Thread), args.Error(1)
}

func (m *MockThreadRepo) ListForTenant(ctx context.Context, tenantID int64, f domain.ThreadFilter) ([]*domain.Thread, error) {
	args := m.Called(ctx, tenantID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Thread), args.Error(1)
}

func (m *MockThreadRepo) TouchLastMessage(ctx context.Context, threadID int64, at time.Time) error {
	args := m.Called(ctx, threadID, at)
	return args.Error(0)
}

func (m *MockThreadRepo) SetArchived(ctx context.Context, threadID int64, archived bool) error {
	args := m.Called(ctx, threadID, archived)
	return args.Error(0)
}

func (m *MockThreadRepo) SetFlagged(ctx context.Context, threadID int64, flagged bool) error {
	args := m.Called(ctx, threadID, flagged)
	return args.Error(0)
}

func (m *MockThreadRepo) ClaimFirstInbound(ctx context.Context, threadID int64, at time.Time) (bool, error) {
	args := m.Called(ctx, threadID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockThreadRepo) ClaimFirstOrgReply(ctx context.Context, threadID int64, at time.Time, responseSeconds, businessSeconds int64) (bool, error) {
	args := m.Called(ctx, threadID, at, responseSeconds, businessSeconds)
	return args.Bool(0), args.Error(1)
}

type MockParticipantRepo struct {
	mock.Mock
}

func (m *MockParticipantRepo) ListForThread(ctx context.Context, threadID int64) ([]*domain.Party, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Party), args.Error(1)
}

func (m *MockParticipantRepo) Get(ctx context.Context, threadID, partyID int64) (*domain.ThreadParticipant, error) {
	args := m.Called(ctx, threadID, partyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ThreadParticipant), args.Error(1)
}

func (m *MockParticipantRepo) IsParticipant(ctx context.Context, threadID, partyID int64) (bool, error) {
	args := m.Called(ctx, threadID, partyID)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantRepo) SetLastRead(ctx context.Context, threadID, partyID int64, at *time.Time) error {
	args := m.Called(ctx, threadID, partyID, at)
	return args.Error(0)
}

func (m *MockParticipantRepo) UnreadCount(ctx context.Context, threadID, partyID int64) (int, error) {
	args := m.Called(ctx, threadID, partyID)
	return args.Int(0), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) ListForThread(ctx context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, threadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type MockSLAStatsRepo struct {
	mock.Mock
}

func (m *MockSLAStatsRepo) Get(ctx context.Context, tenantID int64) (*domain.TenantSLAStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantSLAStats), args.Error(1)
}

func (m *MockSLAStatsRepo) ApplyResponseSample(ctx context.Context, tenantID int64, at time.Time, fold domain.ResponseFold) (*domain.TenantSLAStats, error) {
	args := m.Called(ctx, tenantID, at, fold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantSLAStats), args.Error(1)
}

func (m *MockSLAStatsRepo) SetSchedule(ctx context.Context, tenantID int64, scheduleJSON *string, timeZone string) error {
	args := m.Called(ctx, tenantID, scheduleJSON, timeZone)
	return args.Error(0)
}

type MockPortalAccountRepo struct {
	mock.Mock
}

func (m *MockPortalAccountRepo) Create(ctx context.Context, a *domain.PortalAccount) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockPortalAccountRepo) IdentityKeyByEmail(ctx context.Context, tenantID int64, email string) (string, error) {
	args := m.Called(ctx, tenantID, email)
	return args.String(0), args.Error(1)
}

type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockAuditRepo) ListForTenant(ctx context.Context, tenantID int64, limit int) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditEntry), args.Error(1)
}

// fakeResolver avoids mock plumbing for the common case of a fixed org party.
type fakeResolver struct {
	orgPartyID int64
	err        error
}

func (f fakeResolver) OrgPartyID(ctx context.Context, tenantID int64) (int64, error) {
	return f.orgPartyID, f.err
}

// captureRegistry records broadcasts for assertions. Broadcasts arrive from
// detached goroutines, so access is mutex-guarded and tests poll with
// assert.Eventually.
type captureRegistry[K comparable] struct {
	mu       sync.Mutex
	keys     [][]K
	payloads []any
}

func (c *captureRegistry[K]) Broadcast(keys []K, payload any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, keys)
	c.payloads = append(c.payloads, payload)
	return len(keys)
}

func (c *captureRegistry[K]) broadcasts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *captureRegistry[K]) lastKeys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return nil
	}
	return c.keys[len(c.keys)-1]
}

// fakeEvaluator records auto-reply triggers.
type fakeEvaluator struct {
	calls atomic.Int64
	err   error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, tenantID, threadID, inboundSenderPartyID int64) error {
	f.calls.Add(1)
	return f.err
}
