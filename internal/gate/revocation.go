package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// RevocationList is an explicit deny-list of grant IDs. Entries only need to
// live until the grant would have expired anyway.
type RevocationList interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// RedisRevocations stores revoked grant IDs as expiring Redis keys.
type RedisRevocations struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

// NewRedisRevocations builds a deny-list over client using keys prefix+id.
func NewRedisRevocations(client redis.UniversalClient, prefix string) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: prefix, nowFunc: time.Now}
}

// Revoke implements RevocationList. Grants already past until are ignored.
func (r *RedisRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(r.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, r.prefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// IsRevoked implements RevocationList.
func (r *RedisRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// Ping reports whether Redis is reachable.
func (r *RedisRevocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MemoryRevocations is a process-local deny-list, suitable for a single
// storage server or tests.
type MemoryRevocations struct {
	cache   *ttlcache.Cache[string, struct{}]
	nowFunc func() time.Time
}

// NewMemoryRevocations starts an in-memory deny-list.
func NewMemoryRevocations() *MemoryRevocations {
	cache := ttlcache.New[string, struct{}](ttlcache.WithDisableTouchOnHit[string, struct{}]())
	go cache.Start()
	return &MemoryRevocations{cache: cache, nowFunc: time.Now}
}

// Revoke implements RevocationList.
func (m *MemoryRevocations) Revoke(_ context.Context, id string, until time.Time) error {
	ttl := until.Sub(m.nowFunc())
	if ttl <= 0 {
		return nil
	}
	m.cache.Set(id, struct{}{}, ttl)
	return nil
}

// IsRevoked implements RevocationList.
func (m *MemoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return m.cache.Has(id), nil
}

// Close stops the expiry janitor.
func (m *MemoryRevocations) Close() {
	m.cache.Stop()
}
