package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/messaging"
)

const payloadField = "payload"

// RedisBroker publishes to Redis streams and consumes them through consumer
// groups, so each message reaches one member of every group. Messages are
// kept in the stream while no member is connected, and entries left
// unacknowledged by a member that went away are claimed by the others once
// they have been idle for ClaimIdle.
type RedisBroker struct {
	client   *redis.Client
	logger   *logger.Logger
	options  Options
	consumer string
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

type Options struct {
	// MaxLen caps each stream, approximately; 0 leaves it unbounded.
	MaxLen    int64
	Block     time.Duration
	BatchSize int64
	ClaimIdle time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxLen:    10000,
		Block:     2 * time.Second,
		BatchSize: 10,
		ClaimIdle: time.Minute,
	}
}

// NewClient parses the URL, applies pool settings and checks connectivity.
// The client is shared by the broker and the rate limiter.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func NewRedisBroker(client *redis.Client, log *logger.Logger, options Options) *RedisBroker {
	if log == nil {
		log = logger.Nop()
	}
	defaults := DefaultOptions()
	if options.Block <= 0 {
		options.Block = defaults.Block
	}
	if options.BatchSize <= 0 {
		options.BatchSize = defaults.BatchSize
	}
	if options.ClaimIdle <= 0 {
		options.ClaimIdle = defaults.ClaimIdle
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return &RedisBroker{
		client:   client,
		logger:   log.With("component", "messaging.redis"),
		options:  options,
		consumer: host + "-" + uuid.NewString()[:8],
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: channel,
		Values: map[string]interface{}{payloadField: payload},
	}
	if b.options.MaxLen > 0 {
		args.MaxLen = b.options.MaxLen
		args.Approx = true
	}
	return b.client.XAdd(ctx, args).Err()
}

// Subscribe creates group if needed, starting at the stream's tail, and
// consumes it until ctx is cancelled. The returned channel is unbuffered:
// messages not yet handed over stay pending for another member.
func (b *RedisBroker) Subscribe(ctx context.Context, channel, group string) (<-chan messaging.Delivery, error) {
	err := b.client.XGroupCreateMkStream(ctx, channel, group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s on %s: %w", group, channel, err)
	}

	s := &subscription{
		broker:   b,
		stream:   channel,
		group:    group,
		consumer: b.consumer + "-" + group,
		out:      make(chan messaging.Delivery),
	}
	go s.run(ctx)

	b.logger.Info("joined consumer group", "stream", channel, "group", group, "consumer", s.consumer)
	return s.out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type subscription struct {
	broker   *RedisBroker
	stream   string
	group    string
	consumer string
	out      chan messaging.Delivery
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)
	log := s.broker.logger

	var lastClaim time.Time
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= s.broker.options.ClaimIdle {
			lastClaim = time.Now()
			if !s.claim(ctx) {
				return
			}
		}

		streams, err := s.broker.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.broker.options.BatchSize,
			Block:    s.broker.options.Block,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			log.Warn("stream read failed", "stream", s.stream, "group", s.group, "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			if !s.forward(ctx, stream.Messages) {
				return
			}
		}
	}
}

// claim takes over entries another member read but never acknowledged.
func (s *subscription) claim(ctx context.Context) bool {
	start := "0-0"
	for {
		msgs, next, err := s.broker.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.broker.options.ClaimIdle,
			Start:    start,
			Count:    s.broker.options.BatchSize,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.broker.logger.Warn("failed to claim pending entries", "stream", s.stream, "group", s.group, "error", err.Error())
			return true
		}
		if len(msgs) > 0 {
			s.broker.logger.Info("claimed pending entries", "stream", s.stream, "group", s.group, "count", len(msgs))
		}
		if !s.forward(ctx, msgs) {
			return false
		}
		if next == "0-0" || next == "" {
			return true
		}
		start = next
	}
}

func (s *subscription) forward(ctx context.Context, msgs []redis.XMessage) bool {
	for _, msg := range msgs {
		id := msg.ID
		ack := func(ctx context.Context) error {
			return s.broker.client.XAck(ctx, s.stream, s.group, id).Err()
		}

		raw, ok := msg.Values[payloadField].(string)
		if !ok {
			s.broker.logger.Warn("dropping stream entry without payload", "stream", s.stream, "id", id)
			if err := ack(ctx); err != nil && ctx.Err() == nil {
				s.broker.logger.Error(err, "failed to acknowledge stream entry", "stream", s.stream, "id", id)
			}
			continue
		}

		select {
		case s.out <- messaging.NewDelivery([]byte(raw), ack):
		case <-ctx.Done():
			return false
		}
	}
	return true
}
