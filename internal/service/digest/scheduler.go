package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// Runner is satisfied by *Service.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler triggers the digest on a cron schedule. Runs never overlap; a
// trigger that fires while a run is still in progress is skipped.
type Scheduler struct {
	c      *cron.Cron
	loc    *time.Location
	runner Runner
	logger *logger.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler validates spec ("0 9 * * MON") and timezone ("" means UTC).
// ctx bounds every run.
func NewScheduler(ctx context.Context, spec, timezone string, runner Runner, log *logger.Logger) (*Scheduler, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid digest timezone %q: %w", timezone, err)
		}
		loc = l
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Scheduler{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		loc:    loc,
		runner: runner,
		logger: log.With("component", "digest.scheduler"),
	}

	if _, err := s.c.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run(ctx context.Context) {
	started := time.Now()
	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error(err, "digest run failed", "enqueued", result.Enqueued)
		return
	}
	s.logger.Info("digest run finished",
		"enqueued", result.Enqueued,
		"failed", result.Failed,
		"duration", time.Since(started).String())
}

func (s *Scheduler) Start() {
	s.c.Start()
	entries := s.c.Entries()
	if len(entries) > 0 {
		s.logger.Info("digest scheduler started", "next_run", entries[0].Next.Format(time.RFC3339))
	}
}

// Stop prevents new runs and waits for a run in progress.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Next reports when the digest will next run after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(from.In(s.loc))
}
