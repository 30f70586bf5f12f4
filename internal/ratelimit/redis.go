package ratelimit

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

// Fixed window: the first INCR in a window sets the expiry. Bursts of up to 2x
// the limit are possible across a window boundary.
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter shares counters across processes. Store errors fail open.
type RedisLimiter struct {
	client  redis.UniversalClient
	script  *redis.Script
	prefix  string
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *RedisLimiter {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLimiter{
		client:  client,
		script:  redis.NewScript(rateLimitScript),
		prefix:  prefix,
		timeout: timeout,
		logger:  log.With("component", "ratelimit.redis"),
		metrics: m,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string, class Class) bool {
	if l == nil || l.client == nil || !class.usable() || identity == "" {
		return true
	}

	ttl := class.Window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{l.key(identity, class)}, ttl, class.Limit).Int64()
	if err != nil {
		l.degraded(err, "allow", class)
		return true
	}

	l.record(class, allowed == 1)
	return allowed == 1
}

func (l *RedisLimiter) Remaining(ctx context.Context, identity string, class Class) int {
	if l == nil || l.client == nil || !class.usable() || identity == "" {
		return class.Limit
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	used, err := l.client.Get(ctx, l.key(identity, class)).Int()
	if errors.Is(err, redis.Nil) {
		return class.Limit
	}
	if err != nil {
		l.degraded(err, "remaining", class)
		return class.Limit
	}

	if used >= class.Limit {
		return 0
	}
	return class.Limit - used
}

// key hashes the identity so raw emails and client addresses never reach the
// shared store.
func (l *RedisLimiter) key(identity string, class Class) string {
	sum := blake2b.Sum256([]byte(identity))
	k := class.Name + ":" + hex.EncodeToString(sum[:16])
	if l.prefix != "" {
		k = l.prefix + ":" + k
	}
	return k
}

func (l *RedisLimiter) degraded(err error, op string, class Class) {
	l.logger.Warn("rate limit store unavailable, allowing request",
		"op", op,
		"class", class.Name,
		"error", err.Error())
	if l.metrics != nil {
		l.metrics.RateLimitStoreErrors.Inc()
		l.metrics.RateLimitDecisions.WithLabelValues(class.Name, "fail_open").Inc()
	}
}

func (l *RedisLimiter) record(class Class, allowed bool) {
	if l.metrics == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	l.metrics.RateLimitDecisions.WithLabelValues(class.Name, result).Inc()
}
