package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/notification"
	"github.com/jwalitptl/hiring-api/internal/repository/memory"
)

type recordingEnqueuer struct {
	mu     sync.Mutex
	envs   []notification.Envelope
	failTo string
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, env notification.Envelope) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if env.Recipient == e.failTo {
		return uuid.Nil, errors.New("store unavailable")
	}
	e.envs = append(e.envs, env)
	return uuid.New(), nil
}

var now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	users    *memory.UserRepository
	prefs    *memory.PreferencesRepository
	jobs     *memory.JobRepository
	enqueuer *recordingEnqueuer
	svc      *Service
}

func newFixture(pageSize int) *fixture {
	f := &fixture{
		prefs:    memory.NewPreferencesRepository(),
		jobs:     memory.NewJobRepository(),
		enqueuer: &recordingEnqueuer{},
	}
	f.users = memory.NewUserRepository(f.prefs)
	f.svc = NewService(f.users, f.jobs, f.enqueuer, Config{
		Lookback:  7 * 24 * time.Hour,
		MaxJobs:   2,
		PageSize:  pageSize,
		PublicURL: "https://jobs.example.com/",
	}, nil, WithClock(func() time.Time { return now }))
	return f
}

func (f *fixture) addUsers(n int) []model.User {
	users := make([]model.User, n)
	for i := range users {
		users[i] = model.User{ID: uuid.New(), Email: fmt.Sprintf("user%d@example.com", i), Name: fmt.Sprintf("User %d", i)}
	}
	f.users.Add(users...)
	return users
}

func TestRunSendsRecentJobsToEverySubscriber(t *testing.T) {
	f := newFixture(2)
	f.addUsers(5)
	newest := model.Job{ID: uuid.New(), Title: "Newest", Company: "Acme", PostedAt: now.Add(-time.Hour)}
	f.jobs.Add(
		newest,
		model.Job{ID: uuid.New(), Title: "Recent", PostedAt: now.Add(-48 * time.Hour)},
		model.Job{ID: uuid.New(), Title: "Older", PostedAt: now.Add(-72 * time.Hour)},
		model.Job{ID: uuid.New(), Title: "Stale", PostedAt: now.Add(-8 * 24 * time.Hour)},
	)

	result, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Jobs: 2, Enqueued: 5}, result)

	require.Len(t, f.enqueuer.envs, 5)
	seen := map[uuid.UUID]bool{}
	for _, env := range f.enqueuer.envs {
		assert.Equal(t, model.KindJobAlertDigest, env.Kind)
		require.Len(t, env.Data.Jobs, 2)
		assert.Equal(t, "Newest", env.Data.Jobs[0].Title)
		assert.Equal(t, "https://jobs.example.com/jobs/"+newest.ID.String(), env.Data.Jobs[0].URL)
		assert.Equal(t, "Recent", env.Data.Jobs[1].Title)
		assert.False(t, seen[env.UserID], "user notified twice")
		seen[env.UserID] = true
	}
}

func TestRunSkipsUnsubscribedUsers(t *testing.T) {
	f := newFixture(10)
	users := f.addUsers(3)
	f.jobs.Add(model.Job{ID: uuid.New(), Title: "Engineer", PostedAt: now.Add(-time.Hour)})

	noDigest := model.DefaultEmailPreferences(users[0].ID)
	noDigest.WeeklyDigest = false
	require.NoError(t, f.prefs.Upsert(context.Background(), noDigest))
	noAlerts := model.DefaultEmailPreferences(users[1].ID)
	noAlerts.JobAlerts = false
	require.NoError(t, f.prefs.Upsert(context.Background(), noAlerts))

	result, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enqueued)
	require.Len(t, f.enqueuer.envs, 1)
	assert.Equal(t, users[2].ID, f.enqueuer.envs[0].UserID)
}

func TestRunWithoutJobsSendsNothing(t *testing.T) {
	f := newFixture(10)
	f.addUsers(3)
	f.jobs.Add(model.Job{ID: uuid.New(), Title: "Stale", PostedAt: now.Add(-30 * 24 * time.Hour)})

	result, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Empty(t, f.enqueuer.envs)
}

func TestRunContinuesAfterEnqueueFailure(t *testing.T) {
	f := newFixture(10)
	users := f.addUsers(3)
	f.jobs.Add(model.Job{ID: uuid.New(), Title: "Engineer", PostedAt: now.Add(-time.Hour)})
	f.enqueuer.failTo = users[1].Email

	result, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enqueued)
	assert.Equal(t, 1, result.Failed)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	f := newFixture(10)
	f.addUsers(3)
	f.jobs.Add(model.Job{ID: uuid.New(), Title: "Engineer", PostedAt: now.Add(-time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.enqueuer.envs)
}
