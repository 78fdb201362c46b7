// Package identity resolves which party speaks for a tenant's organization.
// The SLA state machine uses this to classify every message sender, so the
// store-backed resolver is authoritative; caching is only an accelerator.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"breederhub/internal/domain"
)

// Resolver returns the organization-party identifier for a tenant.
type Resolver interface {
	OrgPartyID(ctx context.Context, tenantID int64) (int64, error)
}

type storeResolver struct {
	parties domain.PartyRepository
}

// NewResolver returns a Resolver backed directly by the party store. Reads
// go through the same store as message creation, keeping SLA sender
// classification transactionally consistent with the message write.
func NewResolver(parties domain.PartyRepository) Resolver {
	return &storeResolver{parties: parties}
}

func (r *storeResolver) OrgPartyID(ctx context.Context, tenantID int64) (int64, error) {
	id, err := r.parties.OrgPartyID(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("org party for tenant %d: %w", tenantID, err)
	}
	return id, nil
}

// CachedResolver wraps a Resolver with a short-TTL redis read-through. Cache
// failures fall back to the inner resolver, never to an error. Known risk: a
// tenant that re-keys its organization party can be misclassified for up to
// the TTL; keep the TTL short.
type CachedResolver struct {
	inner Resolver
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedResolver(inner Resolver, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CachedResolver {
	return &CachedResolver{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

var _ Resolver = (*CachedResolver)(nil)

func cacheKey(tenantID int64) string {
	return fmt.Sprintf("org-party:%d", tenantID)
}

func (r *CachedResolver) OrgPartyID(ctx context.Context, tenantID int64) (int64, error) {
	key := cacheKey(tenantID)

	val, err := r.rdb.Get(ctx, key).Result()
	if err == nil {
		if id, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return id, nil
		}
		// Unparseable entry: drop it and fall through to the store.
		if derr := r.rdb.Del(ctx, key).Err(); derr != nil {
			r.log.Warn("identity cache: delete bad entry", zap.String("key", key), zap.Error(derr))
		}
	} else if err != redis.Nil {
		r.log.Warn("identity cache: get", zap.String("key", key), zap.Error(err))
	}

	id, err := r.inner.OrgPartyID(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	if serr := r.rdb.Set(ctx, key, strconv.FormatInt(id, 10), r.ttl).Err(); serr != nil {
		r.log.Warn("identity cache: set", zap.String("key", key), zap.Error(serr))
	}
	return id, nil
}
