package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	"github.com/jwalitptl/hiring-api/internal/service/event"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// Publisher is satisfied by *event.Publisher.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event)
}

type Service interface {
	Submit(ctx context.Context, userID, jobID uuid.UUID) (*model.Application, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Application, error)
	History(ctx context.Context, id uuid.UUID) ([]*model.StatusHistoryEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Application, error)
	// Transition moves the application to newStatus and appends the history
	// entry atomically. The notification is queued after commit; its outcome
	// never affects the result.
	Transition(ctx context.Context, id uuid.UUID, newStatus model.ApplicationStatus, actorID *uuid.UUID, note *string) (*model.Application, error)
	ScheduleInterview(ctx context.Context, id uuid.UUID, interview model.Interview, actorID *uuid.UUID) (*model.Application, error)
}

type service struct {
	repo      repository.ApplicationRepository
	jobs      repository.JobRepository
	publisher Publisher
	now       func() time.Time
	logger    *logger.Logger
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(repo repository.ApplicationRepository, jobs repository.JobRepository, publisher Publisher, log *logger.Logger, opts ...Option) Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &service{
		repo:      repo,
		jobs:      jobs,
		publisher: publisher,
		now:       time.Now,
		logger:    log.With("component", "application.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Submit(ctx context.Context, userID, jobID uuid.UUID) (*model.Application, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &model.Application{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		UserID: userID,
		JobID:  jobID,
		Status: model.StatusPending,
	}
	actor := userID
	seed := &model.StatusHistoryEntry{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Status:        model.StatusPending,
		ActorID:       &actor,
		CreatedAt:     now,
	}

	if err := s.repo.Create(ctx, app, seed); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, event.Event{
		Type:          event.TypeApplicationSubmitted,
		OccurredAt:    now,
		ApplicationID: app.ID,
		UserID:        app.UserID,
		JobID:         app.JobID,
		NewStatus:     app.Status,
		ActorID:       &actor,
	})

	s.logger.Info("application submitted",
		"application_id", app.ID.String(),
		"user_id", userID.String(),
		"job_id", jobID.String())
	return app, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]*model.StatusHistoryEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Application, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, newStatus model.ApplicationStatus, actorID *uuid.UUID, note *string) (*model.Application, error) {
	note = normalizeNote(note)

	var oldStatus model.ApplicationStatus
	app, entry, err := s.repo.Transition(ctx, id, func(app *model.Application) (*model.StatusHistoryEntry, error) {
		if err := model.CanTransition(app.Status, newStatus); err != nil {
			return nil, err
		}

		oldStatus = app.Status
		now := s.now().UTC()
		app.Status = newStatus
		app.UpdatedAt = now

		return &model.StatusHistoryEntry{
			ID:            uuid.New(),
			ApplicationID: app.ID,
			Status:        newStatus,
			Note:          note,
			ActorID:       actorID,
			CreatedAt:     now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, event.Event{
		Type:          event.TypeStatusChanged,
		OccurredAt:    entry.CreatedAt,
		ApplicationID: app.ID,
		UserID:        app.UserID,
		JobID:         app.JobID,
		OldStatus:     oldStatus,
		NewStatus:     app.Status,
		Note:          note,
		ActorID:       actorID,
	})

	s.logger.Info("application status changed",
		"application_id", app.ID.String(),
		"from", string(oldStatus),
		"to", string(app.Status))
	return app, nil
}

// ScheduleInterview publishes an interview notice. It does not change the
// application status.
func (s *service) ScheduleInterview(ctx context.Context, id uuid.UUID, interview model.Interview, actorID *uuid.UUID) (*model.Application, error) {
	if interview.ScheduledAt.IsZero() {
		return nil, apperrors.BadRequest("scheduled_at is required", nil)
	}

	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status.IsTerminal() {
		return nil, apperrors.Conflict("cannot schedule an interview for a closed application", nil)
	}

	interview.ScheduledAt = interview.ScheduledAt.UTC()
	s.publisher.Publish(ctx, event.Event{
		Type:          event.TypeInterviewScheduled,
		OccurredAt:    s.now().UTC(),
		ApplicationID: app.ID,
		UserID:        app.UserID,
		JobID:         app.JobID,
		NewStatus:     app.Status,
		ActorID:       actorID,
		Interview:     &interview,
	})
	return app, nil
}

func normalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
