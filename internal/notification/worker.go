package notification

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/jwalitptl/hiring-api/internal/email"
	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/ratelimit"
	"github.com/jwalitptl/hiring-api/internal/repository"
	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

type WorkerConfig struct {
	PollInterval time.Duration
	SendTimeout  time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	// Jitter stretches each backoff by a random factor in [0, Jitter).
	Jitter float64

	// RateIdentity and RateClass select the outbound limiter bucket.
	RateIdentity string
	RateClass    ratelimit.Class

	From    string
	ReplyTo string
}

// Worker delivers queued notifications. Exactly one worker should drain a
// given queue.
type Worker struct {
	queue   *Queue
	repo    repository.NotificationRepository
	sender  email.Sender
	limiter ratelimit.Limiter
	cfg     WorkerConfig
	now     func() time.Time
	rand    func() float64
	logger  *logger.Logger
	metrics *metrics.Metrics
}

type WorkerOption func(*Worker)

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithRand replaces the jitter source; f must return values in [0, 1).
func WithRand(f func() float64) WorkerOption {
	return func(w *Worker) { w.rand = f }
}

func NewWorker(queue *Queue, repo repository.NotificationRepository, sender email.Sender, limiter ratelimit.Limiter, cfg WorkerConfig, log *logger.Logger, m *metrics.Metrics, opts ...WorkerOption) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if log == nil {
		log = logger.Nop()
	}

	w := &Worker{
		queue:   queue,
		repo:    repo,
		sender:  sender,
		limiter: limiter,
		cfg:     cfg,
		now:     time.Now,
		rand:    rand.Float64,
		logger:  log.With("component", "notification.worker"),
		metrics: m,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start ticks until ctx is cancelled. A tick in progress when ctx is
// cancelled runs to completion; afterwards the queue is closed and anything
// still waiting is dropped.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("notification worker started", "poll_interval", w.cfg.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

func (w *Worker) shutdown() {
	dropped := w.queue.Close()
	if len(dropped) == 0 {
		w.logger.Info("notification worker stopped")
		return
	}

	ids := make([]string, 0, len(dropped))
	for _, r := range dropped {
		ids = append(ids, r.ID.String())
	}
	w.logger.Warn("notification worker stopped with undelivered notifications",
		"dropped", len(dropped),
		"notification_ids", ids)
}

// Tick processes one batch: everything queued at the start of the tick.
// Requests that are not yet eligible, throttled, or scheduled for retry are
// pushed back after the whole batch has been handled, so a tick never sees
// the same request twice.
func (w *Worker) Tick(ctx context.Context) {
	start := w.now()
	if w.metrics != nil {
		defer func() {
			w.metrics.TickDuration.Observe(w.now().Sub(start).Seconds())
		}()
	}

	// Sends must not be cut short by shutdown; each has its own timeout.
	ctx = context.WithoutCancel(ctx)

	batch := w.queue.Drain()
	var deferred []*Request

	for _, r := range batch {
		if r.NextAttemptAt.After(start) {
			deferred = append(deferred, r)
			continue
		}

		if !w.limiter.Allow(ctx, w.cfg.RateIdentity, w.cfg.RateClass) {
			if w.metrics != nil {
				w.metrics.DeliveryThrottled.Inc()
			}
			deferred = append(deferred, r)
			continue
		}

		if w.deliver(ctx, r) {
			deferred = append(deferred, r)
		}
	}

	for _, r := range deferred {
		if err := w.queue.Push(r); err != nil {
			w.logger.Warn("failed to requeue notification",
				"notification_id", r.ID.String(),
				"error", err.Error())
		}
	}
}

// deliver makes one attempt and records the outcome. It reports whether the
// request should be retried.
func (w *Worker) deliver(ctx context.Context, r *Request) bool {
	r.Attempts++

	msg := email.Message{
		To:      r.Recipient,
		From:    w.cfg.From,
		ReplyTo: w.cfg.ReplyTo,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Headers: map[string]string{
			email.HeaderIdempotencyKey: r.ID.String(),
			email.HeaderNotificationID: r.ID.String(),
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	began := w.now()
	err := w.sender.Send(sendCtx, msg)
	cancel()

	log := w.logger.WithFields(map[string]interface{}{
		"notification_id": r.ID.String(),
		"kind":            string(r.Kind),
		"attempt":         r.Attempts,
	})

	if err == nil {
		sentAt := w.now().UTC()
		w.observe(r, began, "sent")
		if w.metrics != nil {
			w.metrics.NotificationsSent.WithLabelValues(string(r.Kind)).Inc()
		}
		w.record(ctx, log, r, model.DeliveryUpdate{
			Status:   model.NotificationStatusSent,
			Attempts: r.Attempts,
			SentAt:   &sentAt,
		})
		log.Debug("notification sent")
		return false
	}

	r.LastError = err.Error()
	lastError := r.LastError

	if email.IsPermanent(err) || r.Attempts >= r.MaxAttempts {
		reason := "exhausted"
		if email.IsPermanent(err) {
			reason = "permanent"
		}
		w.observe(r, began, "failed")
		if w.metrics != nil {
			w.metrics.NotificationsFailed.WithLabelValues(string(r.Kind), reason).Inc()
		}
		w.record(ctx, log, r, model.DeliveryUpdate{
			Status:    model.NotificationStatusFailed,
			Attempts:  r.Attempts,
			LastError: &lastError,
		})
		log.Warn("notification delivery failed", "reason", reason, "error", lastError)
		return false
	}

	delay := w.backoff(r.Attempts)
	r.NextAttemptAt = w.now().Add(delay)
	w.observe(r, began, "retry")
	if w.metrics != nil {
		w.metrics.DeliveryRetries.WithLabelValues(string(r.Kind)).Inc()
	}
	w.record(ctx, log, r, model.DeliveryUpdate{
		Status:    model.NotificationStatusPending,
		Attempts:  r.Attempts,
		LastError: &lastError,
	})
	log.Info("notification delivery will be retried", "retry_in", delay.String(), "error", lastError)
	return true
}

// backoff returns min(base * 2^attempts, max) stretched by jitter.
func (w *Worker) backoff(attempts int) time.Duration {
	d := float64(w.cfg.BaseBackoff) * math.Pow(2, float64(attempts))
	if d > float64(w.cfg.MaxBackoff) {
		d = float64(w.cfg.MaxBackoff)
	}
	if w.cfg.Jitter > 0 {
		d *= 1 + w.rand()*w.cfg.Jitter
	}
	return time.Duration(d)
}

// record persists delivery state. A failed write is logged; the in-memory
// request keeps its state and the next write overwrites the row.
func (w *Worker) record(ctx context.Context, log *logger.Logger, r *Request, update model.DeliveryUpdate) {
	if err := w.repo.UpdateDelivery(ctx, r.ID, update); err != nil {
		log.Error(err, "failed to record notification delivery", "status", string(update.Status))
	}
}

func (w *Worker) observe(r *Request, began time.Time, result string) {
	if w.metrics == nil {
		return
	}
	w.metrics.DeliveryLatency.WithLabelValues(string(r.Kind), result).Observe(w.now().Sub(began).Seconds())
}
