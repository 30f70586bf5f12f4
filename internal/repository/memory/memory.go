// Package memory implements the repository interfaces in process memory. It
// backs package tests and mirrors the postgres semantics the services rely
// on: unique (user, job) applications, serialized transitions and history
// ordered by commit sequence rather than timestamp.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type ApplicationRepository struct {
	mu      sync.Mutex
	apps    map[uuid.UUID]model.Application
	history map[uuid.UUID][]model.StatusHistoryEntry
	seq     int64
	// FailWrites makes the next Transition fail after fn succeeds, simulating
	// a store error mid-transaction.
	FailWrites bool
}

func NewApplicationRepository() *ApplicationRepository {
	return &ApplicationRepository{
		apps:    make(map[uuid.UUID]model.Application),
		history: make(map[uuid.UUID][]model.StatusHistoryEntry),
	}
}

var _ repository.ApplicationRepository = (*ApplicationRepository)(nil)

func (r *ApplicationRepository) Create(_ context.Context, app *model.Application, seed *model.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.apps {
		if existing.UserID == app.UserID && existing.JobID == app.JobID {
			return apperrors.Conflict("application already exists for this job", nil)
		}
	}
	r.apps[app.ID] = *app
	if seed != nil {
		r.appendLocked(seed)
	}
	return nil
}

func (r *ApplicationRepository) Get(_ context.Context, id uuid.UUID) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.apps[id]
	if !ok {
		return nil, apperrors.NotFound("application", nil)
	}
	return &app, nil
}

func (r *ApplicationRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apps := []*model.Application{}
	for _, app := range r.apps {
		if app.UserID == userID {
			app := app
			apps = append(apps, &app)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps, nil
}

// Transition holds the repository lock for the whole call, which serializes
// transitions the way the row lock does.
func (r *ApplicationRepository) Transition(_ context.Context, id uuid.UUID, fn repository.TransitionFunc) (*model.Application, *model.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.apps[id]
	if !ok {
		return nil, nil, apperrors.NotFound("application", nil)
	}

	app := stored
	entry, err := fn(&app)
	if err != nil {
		return nil, nil, err
	}
	if r.FailWrites {
		r.FailWrites = false
		return nil, nil, apperrors.StoreUnavailable("append status history", nil)
	}

	r.apps[id] = app
	r.appendLocked(entry)
	return &app, entry, nil
}

func (r *ApplicationRepository) ListHistory(_ context.Context, applicationID uuid.UUID) ([]*model.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*model.StatusHistoryEntry, 0, len(r.history[applicationID]))
	for _, e := range r.history[applicationID] {
		e := e
		entries = append(entries, &e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

func (r *ApplicationRepository) appendLocked(entry *model.StatusHistoryEntry) {
	r.seq++
	entry.Seq = r.seq
	r.history[entry.ApplicationID] = append(r.history[entry.ApplicationID], *entry)
}

type NotificationRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.NotificationRecord
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{records: make(map[uuid.UUID]model.NotificationRecord)}
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func (r *NotificationRepository) Create(_ context.Context, record *model.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	r.records[record.ID] = *record
	return nil
}

func (r *NotificationRepository) Get(_ context.Context, id uuid.UUID) (*model.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("notification", nil)
	}
	return &record, nil
}

func (r *NotificationRepository) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*model.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records := []*model.NotificationRecord{}
	for _, record := range r.records {
		if record.UserID == userID {
			record := record
			records = append(records, &record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *NotificationRepository) UpdateDelivery(_ context.Context, id uuid.UUID, update model.DeliveryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return apperrors.NotFound("notification", nil)
	}
	record.Status = update.Status
	record.Attempts = update.Attempts
	record.LastError = update.LastError
	if update.SentAt != nil {
		record.SentAt = update.SentAt
	}
	record.UpdatedAt = time.Now().UTC()
	r.records[id] = record
	return nil
}

type PreferencesRepository struct {
	mu    sync.Mutex
	prefs map[uuid.UUID]model.EmailPreferences
}

func NewPreferencesRepository() *PreferencesRepository {
	return &PreferencesRepository{prefs: make(map[uuid.UUID]model.EmailPreferences)}
}

var _ repository.PreferencesRepository = (*PreferencesRepository)(nil)

func (r *PreferencesRepository) Get(_ context.Context, userID uuid.UUID) (*model.EmailPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prefs[userID]
	if !ok {
		return nil, apperrors.NotFound("email preferences", nil)
	}
	return &p, nil
}

func (r *PreferencesRepository) Upsert(_ context.Context, prefs *model.EmailPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefs.UpdatedAt = time.Now().UTC()
	r.prefs[prefs.UserID] = *prefs
	return nil
}

type UserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
	prefs *PreferencesRepository
}

// NewUserRepository reads digest opt-outs from prefs, which may be nil.
func NewUserRepository(prefs *PreferencesRepository) *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]model.User), prefs: prefs}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Add(users ...model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.users[u.ID] = u
	}
}

func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	return &u, nil
}

func (r *UserRepository) ListDigestSubscribers(ctx context.Context, after uuid.UUID, limit int) ([]*model.User, error) {
	r.mu.Lock()
	all := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	out := []*model.User{}
	for _, u := range all {
		if u.ID.String() <= after.String() {
			continue
		}
		if r.prefs != nil {
			if p, err := r.prefs.Get(ctx, u.ID); err == nil && !p.Allows(model.KindJobAlertDigest) {
				continue
			}
		}
		u := u
		out = append(out, &u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type JobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]model.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]model.Job)}
}

var _ repository.JobRepository = (*JobRepository)(nil)

func (r *JobRepository) Add(jobs ...model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
}

func (r *JobRepository) Get(_ context.Context, id uuid.UUID) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", nil)
	}
	return &j, nil
}

func (r *JobRepository) ListPostedSince(_ context.Context, since time.Time, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := []*model.Job{}
	for _, j := range r.jobs {
		if !j.PostedAt.Before(since) {
			j := j
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].PostedAt.After(jobs[j].PostedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
