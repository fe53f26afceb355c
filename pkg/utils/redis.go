package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis client. Redis only backs the live-call
// slot counters, which sit on the voice webhook path, so timeouts are short:
// a slow Redis must fail fast and let the limiter fail open.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// ClientName is visible in CLIENT LIST.
	ClientName string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 2 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 500 * time.Millisecond
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 500 * time.Millisecond
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   cfg.ClientName,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// slotAcquireScript admits a call when fewer than ARGV[1] slots are held.
// The counter is only incremented on admission, and every admission
// refreshes the TTL. Returns {admitted, held}.
var slotAcquireScript = redis.NewScript(`
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held >= tonumber(ARGV[1]) then
  return {0, held}
end
held = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, held}
`)

// slotReleaseScript frees one slot and never lets the counter go negative,
// even when the key already expired. Returns the slots still held.
var slotReleaseScript = redis.NewScript(`
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held <= 1 then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECR', KEYS[1])
`)

var ErrNoRedis = errors.New("redis client is nil")

// SlotCounter counts live calls per key across bridge instances. The TTL
// bounds how long slots leaked by a crashed instance survive: the key
// expires ttl after the last admission.
type SlotCounter struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSlotCounter(rdb *redis.Client, prefix string, ttl time.Duration) *SlotCounter {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SlotCounter{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *SlotCounter) key(k string) (string, error) {
	if s.rdb == nil {
		return "", ErrNoRedis
	}
	if k == "" {
		return "", fmt.Errorf("slot key is required")
	}
	return s.prefix + k, nil
}

// Acquire takes a slot under limit and reports how many are now held
// (or were held, when rejected).
func (s *SlotCounter) Acquire(ctx context.Context, k string, limit int) (held int, ok bool, err error) {
	key, err := s.key(k)
	if err != nil {
		return 0, false, err
	}
	if limit <= 0 {
		return 0, false, fmt.Errorf("limit must be > 0")
	}
	res, err := slotAcquireScript.Run(ctx, s.rdb, []string{key}, limit, s.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("slot acquire: unexpected reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

// Release frees one slot and returns the number still held.
func (s *SlotCounter) Release(ctx context.Context, k string) (int, error) {
	key, err := s.key(k)
	if err != nil {
		return 0, err
	}
	return slotReleaseScript.Run(ctx, s.rdb, []string{key}).Int()
}

// Held reports how many slots are held for k. A missing key reads as zero.
func (s *SlotCounter) Held(ctx context.Context, k string) (int, error) {
	key, err := s.key(k)
	if err != nil {
		return 0, err
	}
	n, err := s.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
