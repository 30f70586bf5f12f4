package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

// MemoryLimiter is the single-process backend. It keeps a rolling log of
// admission times per (class, identity), so no window of length class.Window
// ever admits more than class.Limit actions. Idle logs expire from the cache
// after one window.
type MemoryLimiter struct {
	mu      sync.Mutex
	logs    *cache.Cache
	now     func() time.Time
	metrics *metrics.Metrics
}

type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source. Tests use it to step through windows.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

func WithMemoryMetrics(m *metrics.Metrics) MemoryOption {
	return func(l *MemoryLimiter) { l.metrics = m }
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		logs: cache.New(time.Minute, 5*time.Minute),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, identity string, class Class) bool {
	if !class.usable() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := class.Name + ":" + identity
	now := l.now()
	valid := l.prune(key, class, now)

	if len(valid) >= class.Limit {
		l.logs.Set(key, valid, class.Window)
		l.record(class, false)
		return false
	}

	l.logs.Set(key, append(valid, now), class.Window)
	l.record(class, true)
	return true
}

func (l *MemoryLimiter) Remaining(_ context.Context, identity string, class Class) int {
	if !class.usable() {
		return class.Limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := class.Limit - len(l.prune(class.Name+":"+identity, class, l.now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter reports how long until the oldest admission leaves the window.
func (l *MemoryLimiter) RetryAfter(identity string, class Class) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(class.Name+":"+identity, class, now)
	if len(valid) < class.Limit || len(valid) == 0 {
		return 0
	}
	return valid[0].Add(class.Window).Sub(now)
}

// prune returns the admissions still inside the window. Callers hold l.mu.
func (l *MemoryLimiter) prune(key string, class Class, now time.Time) []time.Time {
	cached, ok := l.logs.Get(key)
	if !ok {
		return nil
	}
	times := cached.([]time.Time)

	cutoff := now.Add(-class.Window)
	valid := make([]time.Time, 0, len(times)+1)
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

func (l *MemoryLimiter) record(class Class, allowed bool) {
	if l.metrics == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	l.metrics.RateLimitDecisions.WithLabelValues(class.Name, result).Inc()
}
