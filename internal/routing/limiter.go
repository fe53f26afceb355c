package routing

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinic-voice-bridge/internal/tenants"
	"clinic-voice-bridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CallLimiter caps live calls per tenant across bridge instances.
type CallLimiter interface {
	// Acquire takes a slot; false means the tenant is at capacity.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	// Active is the number of held slots. It is a soft check only.
	Active(ctx context.Context, key string) (int, error)
}

// LimiterKey is the slot key for a tenant context. Tenant-less calls share
// one bucket.
func LimiterKey(tc tenants.Context) string {
	if tc.Generic || tc.TenantID == "" {
		return "generic"
	}
	return tc.TenantID
}

const redisLimiterPrefix = "bridge:live_calls:"

// RedisLimiter shares slots between bridge instances through Redis.
type RedisLimiter struct {
	slots *utils.SlotCounter
	limit int
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	return &RedisLimiter{slots: utils.NewSlotCounter(rdb, redisLimiterPrefix, ttl), limit: limit}
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string) (bool, error) {
	_, ok, err := l.slots.Acquire(ctx, key, l.limit)
	return ok, err
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	_, err := l.slots.Release(ctx, key)
	return err
}

func (l *RedisLimiter) Active(ctx context.Context, key string) (int, error) {
	return l.slots.Held(ctx, key)
}

// MemoryLimiter is the single-instance limiter used when Redis is not
// configured, and in tests.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, counts: make(map[string]int)}
}

func (l *MemoryLimiter) Acquire(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && l.counts[key] >= l.limit {
		return false, nil
	}
	l.counts[key]++
	return true, nil
}

func (l *MemoryLimiter) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] <= 1 {
		delete(l.counts, key)
		return nil
	}
	l.counts[key]--
	return nil
}

func (l *MemoryLimiter) Active(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key], nil
}
