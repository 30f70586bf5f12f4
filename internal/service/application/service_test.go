package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository/memory"
	"github.com/jwalitptl/hiring-api/internal/service/event"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// tickingClock advances one second per reading so history timestamps differ.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// steppedClock returns whatever time it was last set to.
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fixture struct {
	svc       Service
	repo      *memory.ApplicationRepository
	jobs      *memory.JobRepository
	publisher *recordingPublisher
	job       model.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      memory.NewApplicationRepository(),
		jobs:      memory.NewJobRepository(),
		publisher: &recordingPublisher{},
		job:       model.Job{ID: uuid.New(), Title: "Backend Engineer", Company: "Acme"},
	}
	f.jobs.Add(f.job)
	clock := &tickingClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	f.svc = NewService(f.repo, f.jobs, f.publisher, nil, WithClock(clock.Now))
	return f
}

func (f *fixture) submit(t *testing.T) *model.Application {
	t.Helper()
	app, err := f.svc.Submit(context.Background(), uuid.New(), f.job.ID)
	require.NoError(t, err)
	return app
}

func statuses(entries []*model.StatusHistoryEntry) []model.ApplicationStatus {
	out := make([]model.ApplicationStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status)
	}
	return out
}

func TestSubmitSeedsHistoryAndPublishes(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	assert.Equal(t, model.StatusPending, app.Status)

	history, err := f.svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusPending, history[0].Status)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, app.UserID, *history[0].ActorID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, event.TypeApplicationSubmitted, f.publisher.events[0].Type)
	assert.Equal(t, app.ID, f.publisher.events[0].ApplicationID)
}

func TestSubmitRejectsDuplicatesAndUnknownJobs(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)

	_, err := f.svc.Submit(context.Background(), app.UserID, f.job.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = f.svc.Submit(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	assert.Len(t, f.publisher.events, 1)
}

func TestHistoryMatchesAppliedTransitions(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	ctx := context.Background()
	actor := uuid.New()

	path := []model.ApplicationStatus{
		model.StatusUnderReview,
		model.StatusShortlisted,
		model.StatusUnderReview,
		model.StatusShortlisted,
		model.StatusAccepted,
	}
	for _, status := range path {
		_, err := f.svc.Transition(ctx, app.ID, status, &actor, nil)
		require.NoError(t, err)
	}

	history, err := f.svc.History(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, append([]model.ApplicationStatus{model.StatusPending}, path...), statuses(history))
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
		assert.Greater(t, history[i].Seq, history[i-1].Seq)
	}

	got, err := f.svc.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestHistoryFollowsCommitOrderWhenClockStepsBack(t *testing.T) {
	repo := memory.NewApplicationRepository()
	jobs := memory.NewJobRepository()
	job := model.Job{ID: uuid.New(), Title: "Backend Engineer"}
	jobs.Add(job)
	clock := &steppedClock{}
	svc := NewService(repo, jobs, &recordingPublisher{}, nil, WithClock(clock.Now))
	ctx := context.Background()
	actor := uuid.New()

	clock.Set(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	app, err := svc.Submit(ctx, uuid.New(), job.ID)
	require.NoError(t, err)

	clock.Set(time.Date(2024, 3, 4, 9, 0, 5, 0, time.UTC))
	_, err = svc.Transition(ctx, app.ID, model.StatusUnderReview, &actor, nil)
	require.NoError(t, err)

	clock.Set(time.Date(2024, 3, 4, 9, 0, 2, 0, time.UTC))
	_, err = svc.Transition(ctx, app.ID, model.StatusShortlisted, &actor, nil)
	require.NoError(t, err)

	history, err := svc.History(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ApplicationStatus{
		model.StatusPending,
		model.StatusUnderReview,
		model.StatusShortlisted,
	}, statuses(history))
	assert.True(t, history[2].CreatedAt.Before(history[1].CreatedAt))
}

func TestTransitionPublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	actor := uuid.New()
	note := "  Strong portfolio  "

	updated, err := f.svc.Transition(context.Background(), app.ID, model.StatusShortlisted, &actor, &note)
	require.NoError(t, err)
	assert.Equal(t, model.StatusShortlisted, updated.Status)

	require.Len(t, f.publisher.events, 2)
	evt := f.publisher.events[1]
	assert.Equal(t, event.TypeStatusChanged, evt.Type)
	assert.Equal(t, model.StatusPending, evt.OldStatus)
	assert.Equal(t, model.StatusShortlisted, evt.NewStatus)
	require.NotNil(t, evt.Note)
	assert.Equal(t, "Strong portfolio", *evt.Note)
	assert.Equal(t, &actor, evt.ActorID)

	history, err := f.svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	require.NotNil(t, history[1].Note)
	assert.Equal(t, "Strong portfolio", *history[1].Note)
}

func TestTransitionFromTerminalLeavesStateUnchanged(t *testing.T) {
	for _, terminal := range []model.ApplicationStatus{model.StatusRejected, model.StatusAccepted} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			app := f.submit(t)
			ctx := context.Background()

			_, err := f.svc.Transition(ctx, app.ID, terminal, nil, nil)
			require.NoError(t, err)
			before := len(f.publisher.events)

			for _, target := range model.AllStatuses {
				_, err := f.svc.Transition(ctx, app.ID, target, nil, nil)
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition), "target %s", target)
			}

			got, err := f.svc.Get(ctx, app.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)

			history, err := f.svc.History(ctx, app.ID)
			require.NoError(t, err)
			assert.Len(t, history, 2)
			assert.Len(t, f.publisher.events, before)
		})
	}
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, uuid.New(), model.StatusUnderReview, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Transition(ctx, app.ID, model.ApplicationStatus("interviewing"), nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.Transition(ctx, app.ID, model.StatusPending, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	_, err = f.svc.Transition(ctx, app.ID, model.StatusUnderReview, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, app.ID, model.StatusUnderReview, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestTransitionStoreFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	f.repo.FailWrites = true

	_, err := f.svc.Transition(context.Background(), app.ID, model.StatusUnderReview, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrStoreUnavailable))

	got, err := f.svc.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	history, err := f.svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, []event.Type{event.TypeApplicationSubmitted}, f.publisher.types())
}

func TestConcurrentTransitionsAreSerialized(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, target := range []model.ApplicationStatus{model.StatusAccepted, model.StatusRejected} {
		wg.Add(1)
		go func(target model.ApplicationStatus) {
			defer wg.Done()
			_, err := f.svc.Transition(ctx, app.ID, target, nil, nil)
			results <- err
		}(target)
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
		} else if apperrors.Is(err, apperrors.ErrInvalidTransition) {
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	history, err := f.svc.History(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestScheduleInterview(t *testing.T) {
	f := newFixture(t)
	app := f.submit(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)

	_, err := f.svc.ScheduleInterview(ctx, app.ID, model.Interview{}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	got, err := f.svc.ScheduleInterview(ctx, app.ID, model.Interview{ScheduledAt: at, Location: "Office"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	require.Len(t, f.publisher.events, 2)
	evt := f.publisher.events[1]
	assert.Equal(t, event.TypeInterviewScheduled, evt.Type)
	require.NotNil(t, evt.Interview)
	assert.Equal(t, at, evt.Interview.ScheduledAt)

	_, err = f.svc.Transition(ctx, app.ID, model.StatusRejected, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.ScheduleInterview(ctx, app.ID, model.Interview{ScheduledAt: at}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}
