package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces counter keys.
const DefaultRedisPrefix = "tollgate:usage:"

// Counter scripts return -1 when the counter hash does not exist, so a charge
// against a missing account never silently creates one.
var (
	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local used = redis.call('HINCRBY', KEYS[1], 'used', ARGV[1])
redis.call('HSET', KEYS[1], 'updated', ARGV[2])
return used`)

	resetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'used', 0, 'updated', ARGV[1])
return 0`)

	ensureScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'used', 0, 'limit', ARGV[1], 'updated', ARGV[2])
return 1`)

	setLimitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then redis.call('HSET', KEYS[1], 'used', 0) end
redis.call('HSET', KEYS[1], 'limit', ARGV[1], 'updated', ARGV[2])
return 0`)
)

// RedisUsage keeps usage counters in Redis hashes with used and limit fields.
// HINCRBY makes the increment atomic on the server.
type RedisUsage struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisUsage creates a counter store on an existing client.
func NewRedisUsage(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisUsage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisUsage{client: client, prefix: prefix, timeout: timeout}
}

// ConnectRedis parses a redis:// URL and verifies the connection with PING.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisUsage) key(email string) string {
	return s.prefix + email
}

// GetCounter returns the usage counter for email.
func (s *RedisUsage) GetCounter(ctx context.Context, email string) (*domain.UsageCounter, error) {
	const op = "usage.get"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := s.client.HMGet(ctx, s.key(email), "used", "limit", "updated").Result()
	if err != nil {
		return nil, unavailable(err, op)
	}
	if vals[0] == nil || vals[1] == nil {
		return nil, notFound(domain.ErrAccountNotFound, op, email)
	}

	used, err := parseField(vals[0])
	if err != nil {
		return nil, domain.Internal(err, op, "corrupt usage counter")
	}
	limit, err := parseField(vals[1])
	if err != nil {
		return nil, domain.Internal(err, op, "corrupt usage counter")
	}

	c := &domain.UsageCounter{Email: email, Used: used, Limit: limit}
	if vals[2] != nil {
		if ts, err := parseField(vals[2]); err == nil {
			c.UpdatedAt = time.Unix(ts, 0).UTC()
		}
	}
	return c, nil
}

// Increment atomically adds amount to used.
func (s *RedisUsage) Increment(ctx context.Context, email string, amount int64) error {
	const op = "usage.increment"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := incrementScript.Run(ctx, s.client, []string{s.key(email)}, amount, time.Now().Unix()).Int64()
	if err != nil {
		return unavailable(err, op)
	}
	if n < 0 {
		return notFound(domain.ErrAccountNotFound, op, email)
	}
	return nil
}

// Reset sets used back to zero.
func (s *RedisUsage) Reset(ctx context.Context, email string) error {
	const op = "usage.reset"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := resetScript.Run(ctx, s.client, []string{s.key(email)}, time.Now().Unix()).Int64()
	if err != nil {
		return unavailable(err, op)
	}
	if n < 0 {
		return notFound(domain.ErrAccountNotFound, op, email)
	}
	return nil
}

// Ensure creates a zeroed counter with the given limit if none exists.
func (s *RedisUsage) Ensure(ctx context.Context, email string, limit int64) error {
	const op = "usage.ensure"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := ensureScript.Run(ctx, s.client, []string{s.key(email)}, limit, time.Now().Unix()).Err(); err != nil {
		return unavailable(err, op)
	}
	return nil
}

// SetLimit sets the counter's limit, creating a zeroed counter if none
// exists. used is left as is.
func (s *RedisUsage) SetLimit(ctx context.Context, email string, limit int64) error {
	const op = "usage.set_limit"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := setLimitScript.Run(ctx, s.client, []string{s.key(email)}, limit, time.Now().Unix()).Err(); err != nil {
		return unavailable(err, op)
	}
	return nil
}

func parseField(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}
