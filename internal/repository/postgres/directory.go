package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

// Users, jobs and preferences are owned by other services; this package only
// reads the columns the notification pipeline needs (and writes preferences).

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, name FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, storeErr("user", "get user", err)
	}
	return &user, nil
}

func (r *userRepository) ListDigestSubscribers(ctx context.Context, after uuid.UUID, limit int) ([]*model.User, error) {
	users := []*model.User{}
	err := r.db.SelectContext(ctx, &users, `
		SELECT u.id, u.email, u.name
		FROM users u
		LEFT JOIN email_preferences p ON p.user_id = u.id
		WHERE u.id > $1
		AND COALESCE(p.job_alerts, TRUE)
		AND COALESCE(p.weekly_digest, TRUE)
		ORDER BY u.id
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, storeErr("user", "list digest subscribers", err)
	}
	return users, nil
}

type jobRepository struct {
	BaseRepository
}

func NewJobRepository(base BaseRepository) repository.JobRepository {
	return &jobRepository{base}
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	err := r.db.GetContext(ctx, &job, `
		SELECT id, title, company, location, posted_at FROM jobs WHERE id = $1
	`, id)
	if err != nil {
		return nil, storeErr("job", "get job", err)
	}
	return &job, nil
}

func (r *jobRepository) ListPostedSince(ctx context.Context, since time.Time, limit int) ([]*model.Job, error) {
	jobs := []*model.Job{}
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT id, title, company, location, posted_at
		FROM jobs
		WHERE posted_at >= $1
		ORDER BY posted_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, storeErr("job", "list recent jobs", err)
	}
	return jobs, nil
}

type preferencesRepository struct {
	BaseRepository
}

func NewPreferencesRepository(base BaseRepository) repository.PreferencesRepository {
	return &preferencesRepository{base}
}

func (r *preferencesRepository) Get(ctx context.Context, userID uuid.UUID) (*model.EmailPreferences, error) {
	var prefs model.EmailPreferences
	err := r.db.GetContext(ctx, &prefs, `
		SELECT user_id, application_updates, job_alerts, interview_reminders,
			   weekly_digest, marketing, updated_at
		FROM email_preferences
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, storeErr("email preferences", "get email preferences", err)
	}
	return &prefs, nil
}

func (r *preferencesRepository) Upsert(ctx context.Context, prefs *model.EmailPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO email_preferences (
			user_id, application_updates, job_alerts, interview_reminders,
			weekly_digest, marketing, updated_at
		) VALUES (
			:user_id, :application_updates, :job_alerts, :interview_reminders,
			:weekly_digest, :marketing, :updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			application_updates = EXCLUDED.application_updates,
			job_alerts = EXCLUDED.job_alerts,
			interview_reminders = EXCLUDED.interview_reminders,
			weekly_digest = EXCLUDED.weekly_digest,
			marketing = EXCLUDED.marketing,
			updated_at = EXCLUDED.updated_at
	`, prefs)
	if err != nil {
		return apperrors.StoreUnavailable("upsert email preferences", err)
	}
	return nil
}
