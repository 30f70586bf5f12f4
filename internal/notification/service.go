package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	"github.com/jwalitptl/hiring-api/internal/templates"
	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

// Renderer is satisfied by *templates.Renderer.
type Renderer interface {
	Render(kind model.NotificationKind, data templates.Data) (*templates.Rendered, error)
}

// Envelope is what callers hand to Enqueue: who to notify, about what, and
// the data to render.
type Envelope struct {
	UserID    uuid.UUID
	Recipient string
	Kind      model.NotificationKind
	Data      templates.Data
}

type Service struct {
	queue       *Queue
	repo        repository.NotificationRepository
	renderer    Renderer
	maxAttempts int
	now         func() time.Time
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

type ServiceOption func(*Service)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(queue *Queue, repo repository.NotificationRepository, renderer Renderer, maxAttempts int, log *logger.Logger, m *metrics.Metrics, opts ...ServiceOption) *Service {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		queue:       queue,
		repo:        repo,
		renderer:    renderer,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      log.With("component", "notification.service"),
		metrics:     m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue renders the notification, records it as pending and queues it for
// the worker. It never contacts the transport. Rendering and storage errors are
// returned to the caller.
func (s *Service) Enqueue(ctx context.Context, env Envelope) (uuid.UUID, error) {
	rendered, err := s.renderer.Render(env.Kind, env.Data)
	if err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(env.Data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}

	now := s.now().UTC()
	record := &model.NotificationRecord{
		ID:        uuid.New(),
		UserID:    env.UserID,
		Kind:      env.Kind,
		Recipient: env.Recipient,
		Subject:   rendered.Subject,
		Payload:   model.Payload(payload),
		Status:    model.NotificationStatusPending,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record notification: %w", err)
	}

	err = s.queue.Push(&Request{
		ID:            record.ID,
		UserID:        env.UserID,
		Kind:          env.Kind,
		Recipient:     env.Recipient,
		Subject:       rendered.Subject,
		HTML:          rendered.HTML,
		Text:          rendered.Text,
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: now,
	})
	if errors.Is(err, ErrQueueClosed) {
		reason := ErrQueueClosed.Error()
		if uerr := s.repo.UpdateDelivery(ctx, record.ID, model.DeliveryUpdate{
			Status:    model.NotificationStatusFailed,
			LastError: &reason,
		}); uerr != nil {
			s.logger.Error(uerr, "failed to mark notification as failed", "notification_id", record.ID.String())
		}
		return uuid.Nil, err
	}

	if s.metrics != nil {
		s.metrics.NotificationsEnqueued.WithLabelValues(string(env.Kind)).Inc()
	}
	s.logger.Debug("notification enqueued",
		"notification_id", record.ID.String(),
		"kind", string(env.Kind),
		"user_id", env.UserID.String())

	return record.ID, nil
}

// List returns the newest notifications recorded for a user.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]*model.NotificationRecord, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}
