package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/notification"
	"github.com/jwalitptl/hiring-api/internal/repository/memory"
	"github.com/jwalitptl/hiring-api/internal/service/preferences"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
	"github.com/jwalitptl/hiring-api/pkg/messaging"
	messagingredis "github.com/jwalitptl/hiring-api/pkg/messaging/redis"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	envs []notification.Envelope
	err  error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, env notification.Envelope) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return uuid.Nil, e.err
	}
	e.envs = append(e.envs, env)
	return uuid.New(), nil
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.envs)
}

type fixture struct {
	dispatcher *Dispatcher
	enqueuer   *recordingEnqueuer
	prefs      preferences.Service
	broker     *messaging.MemoryBroker
	users      *memory.UserRepository
	jobs       *memory.JobRepository
	user       model.User
	job        model.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		enqueuer: &recordingEnqueuer{},
		prefs:    preferences.NewService(memory.NewPreferencesRepository()),
		broker:   messaging.NewMemoryBroker(16),
		user:     model.User{ID: uuid.New(), Email: "ada@example.com", Name: "Ada"},
		job:      model.Job{ID: uuid.New(), Title: "Backend Engineer", Company: "Acme"},
	}
	t.Cleanup(func() { f.broker.Close() })

	f.users = memory.NewUserRepository(nil)
	f.users.Add(f.user)
	f.jobs = memory.NewJobRepository()
	f.jobs.Add(f.job)

	f.dispatcher = NewDispatcher(f.broker, "events", "dispatcher", f.enqueuer, f.prefs, f.users, f.jobs, nil)
	return f
}

func (f *fixture) event(typ Type) Event {
	return Event{
		ID:            uuid.New(),
		Type:          typ,
		ApplicationID: uuid.New(),
		UserID:        f.user.ID,
		JobID:         f.job.ID,
	}
}

func TestHandleStatusChanged(t *testing.T) {
	f := newFixture(t)
	note := "Great interview"
	evt := f.event(TypeStatusChanged)
	evt.OldStatus = model.StatusUnderReview
	evt.NewStatus = model.StatusShortlisted
	evt.Note = &note

	require.NoError(t, f.dispatcher.Handle(context.Background(), evt))

	require.Len(t, f.enqueuer.envs, 1)
	env := f.enqueuer.envs[0]
	assert.Equal(t, model.KindStatusUpdate, env.Kind)
	assert.Equal(t, "ada@example.com", env.Recipient)
	assert.Equal(t, f.user.ID, env.UserID)
	assert.Equal(t, "Ada", env.Data.RecipientName)
	assert.Equal(t, "Backend Engineer", env.Data.JobTitle)
	assert.Equal(t, "Acme", env.Data.CompanyName)
	assert.Equal(t, "Under review", env.Data.OldStatus)
	assert.Equal(t, "Shortlisted", env.Data.NewStatus)
	assert.Equal(t, note, env.Data.Note)
	assert.Equal(t, evt.ApplicationID.String(), env.Data.ApplicationID)
}

func TestHandleInterviewScheduled(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)
	evt := f.event(TypeInterviewScheduled)
	evt.Interview = &model.Interview{ScheduledAt: at, Location: "Office", MeetingURL: "https://meet.example.com/x"}

	require.NoError(t, f.dispatcher.Handle(context.Background(), evt))

	require.Len(t, f.enqueuer.envs, 1)
	env := f.enqueuer.envs[0]
	assert.Equal(t, model.KindInterviewScheduled, env.Kind)
	require.NotNil(t, env.Data.Interview)
	assert.Equal(t, at, env.Data.Interview.At)
	assert.Equal(t, "https://meet.example.com/x", env.Data.Interview.MeetingURL)
}

func TestHandleRespectsPreferences(t *testing.T) {
	f := newFixture(t)
	off := false
	_, err := f.prefs.Update(context.Background(), f.user.ID, &model.UpdateEmailPreferencesRequest{
		ApplicationUpdates: &off,
	})
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.Handle(context.Background(), f.event(TypeApplicationSubmitted)))
	require.NoError(t, f.dispatcher.Handle(context.Background(), f.event(TypeStatusChanged)))
	assert.Empty(t, f.enqueuer.envs)

	// Interview reminders are a separate category.
	evt := f.event(TypeInterviewScheduled)
	evt.Interview = &model.Interview{ScheduledAt: time.Now()}
	require.NoError(t, f.dispatcher.Handle(context.Background(), evt))
	assert.Len(t, f.enqueuer.envs, 1)
}

func TestHandleMissingJobLeavesRenderingToDecide(t *testing.T) {
	f := newFixture(t)
	evt := f.event(TypeStatusChanged)
	evt.JobID = uuid.New()
	evt.NewStatus = model.StatusRejected

	require.NoError(t, f.dispatcher.Handle(context.Background(), evt))
	require.Len(t, f.enqueuer.envs, 1)
	assert.Empty(t, f.enqueuer.envs[0].Data.JobTitle)
}

func TestHandleErrors(t *testing.T) {
	f := newFixture(t)

	evt := f.event(TypeStatusChanged)
	evt.UserID = uuid.New()
	err := f.dispatcher.Handle(context.Background(), evt)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	f.enqueuer.err = apperrors.TemplateRender("status_update", errors.New("new status is required"))
	err = f.dispatcher.Handle(context.Background(), f.event(TypeStatusChanged))
	assert.True(t, apperrors.Is(err, apperrors.ErrTemplateRender))

	assert.NoError(t, f.dispatcher.Handle(context.Background(), f.event(Type("job.posted"))))
}

func TestDispatcherConsumesPublishedEvents(t *testing.T) {
	f := newFixture(t)
	m := metrics.New("test", prometheus.NewRegistry())
	publisher := NewPublisher(f.broker, "events", nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.dispatcher.Start(ctx))

	publisher.Publish(ctx, f.event(TypeApplicationSubmitted))
	require.NoError(t, f.broker.Publish(ctx, "events", "not an event object"))
	publisher.Publish(ctx, f.event(TypeStatusChanged))

	require.Eventually(t, func() bool { return f.enqueuer.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(string(TypeStatusChanged))))

	cancel()
	f.dispatcher.Wait()
}

func TestPublisherSwallowsBrokerErrors(t *testing.T) {
	broker := messaging.NewMemoryBroker(1)
	require.NoError(t, broker.Close())
	m := metrics.New("test", prometheus.NewRegistry())

	publisher := NewPublisher(broker, "events", nil, m)
	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), Event{Type: TypeStatusChanged})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(string(TypeStatusChanged))))
}

// replica starts another dispatcher in the same group with its own enqueuer.
func (f *fixture) replica(t *testing.T, ctx context.Context, broker messaging.Broker) *recordingEnqueuer {
	t.Helper()
	enqueuer := &recordingEnqueuer{}
	d := NewDispatcher(broker, "events", "dispatcher", enqueuer, f.prefs, f.users, f.jobs, nil)
	require.NoError(t, d.Start(ctx))
	return enqueuer
}

func TestReplicasInOneGroupDispatchOnce(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := f.replica(t, ctx, f.broker)
	second := f.replica(t, ctx, f.broker)

	evt := f.event(TypeStatusChanged)
	evt.NewStatus = model.StatusShortlisted
	NewPublisher(f.broker, "events", nil, nil).Publish(ctx, evt)

	require.Eventually(t, func() bool { return first.count()+second.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, first.count()+second.count())
}

func TestRedisReplicasDispatchOnce(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newBroker := func() *messagingredis.RedisBroker {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return messagingredis.NewRedisBroker(client, nil, messagingredis.Options{Block: 50 * time.Millisecond})
	}

	replicas := []*recordingEnqueuer{
		f.replica(t, ctx, newBroker()),
		f.replica(t, ctx, newBroker()),
	}
	total := func() int {
		n := 0
		for _, r := range replicas {
			n += r.count()
		}
		return n
	}

	evt := f.event(TypeStatusChanged)
	evt.NewStatus = model.StatusShortlisted
	NewPublisher(newBroker(), "events", nil, nil).Publish(ctx, evt)

	require.Eventually(t, func() bool { return total() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, total())
}
