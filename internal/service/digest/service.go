// Package digest sends the weekly job alert digest to subscribed users.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/notification"
	"github.com/jwalitptl/hiring-api/internal/repository"
	"github.com/jwalitptl/hiring-api/internal/templates"
	"github.com/jwalitptl/hiring-api/pkg/logger"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, env notification.Envelope) (uuid.UUID, error)
}

type Config struct {
	Lookback  time.Duration
	MaxJobs   int
	PageSize  int
	PublicURL string
}

// Result summarizes one digest run.
type Result struct {
	Jobs     int
	Enqueued int
	Failed   int
}

type Service struct {
	users    repository.UserRepository
	jobs     repository.JobRepository
	enqueuer Enqueuer
	cfg      Config
	now      func() time.Time
	logger   *logger.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users repository.UserRepository, jobs repository.JobRepository, enqueuer Enqueuer, cfg Config, log *logger.Logger, opts ...Option) *Service {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		users:    users,
		jobs:     jobs,
		enqueuer: enqueuer,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.With("component", "digest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run enqueues one digest per subscriber listing the jobs posted within the
// lookback window. Nothing is sent when no jobs were posted. A failure for one
// user is logged and counted; the run continues with the next.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var result Result

	since := s.now().Add(-s.cfg.Lookback)
	jobs, err := s.jobs.ListPostedSince(ctx, since, s.cfg.MaxJobs)
	if err != nil {
		return result, fmt.Errorf("failed to list recent jobs: %w", err)
	}
	result.Jobs = len(jobs)
	if len(jobs) == 0 {
		s.logger.Info("no jobs posted since last digest, skipping", "since", since.Format(time.RFC3339))
		return result, nil
	}
	summaries := s.summarize(jobs)

	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		users, err := s.users.ListDigestSubscribers(ctx, after, s.cfg.PageSize)
		if err != nil {
			return result, fmt.Errorf("failed to list digest subscribers: %w", err)
		}

		for _, u := range users {
			_, err := s.enqueuer.Enqueue(ctx, notification.Envelope{
				UserID:    u.ID,
				Recipient: u.Email,
				Kind:      model.KindJobAlertDigest,
				Data: templates.Data{
					RecipientName: u.Name,
					Jobs:          summaries,
				},
			})
			if err != nil {
				result.Failed++
				s.logger.Error(err, "failed to enqueue digest", "user_id", u.ID.String())
				continue
			}
			result.Enqueued++
		}

		if len(users) < s.cfg.PageSize {
			break
		}
		after = users[len(users)-1].ID
	}

	s.logger.Info("weekly digest enqueued",
		"jobs", result.Jobs,
		"enqueued", result.Enqueued,
		"failed", result.Failed)
	return result, nil
}

func (s *Service) summarize(jobs []*model.Job) []templates.JobSummary {
	out := make([]templates.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		summary := templates.JobSummary{
			Title:    j.Title,
			Company:  j.Company,
			Location: j.Location,
		}
		if s.cfg.PublicURL != "" {
			summary.URL = s.cfg.PublicURL + "/jobs/" + j.ID.String()
		}
		out = append(out, summary)
	}
	return out
}
