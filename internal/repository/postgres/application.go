package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type applicationRepository struct {
	BaseRepository
}

func NewApplicationRepository(base BaseRepository) repository.ApplicationRepository {
	return &applicationRepository{base}
}

// applicationRow keeps the raw status string so legacy values are normalized
// before they leave the storage layer.
type applicationRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	JobID     uuid.UUID `db:"job_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r applicationRow) toModel() *model.Application {
	return &model.Application{
		Base: model.Base{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		UserID: r.UserID,
		JobID:  r.JobID,
		Status: model.ParseLegacyStatus(r.Status),
	}
}

type historyRow struct {
	ID            uuid.UUID  `db:"id"`
	Seq           int64      `db:"seq"`
	ApplicationID uuid.UUID  `db:"application_id"`
	Status        string     `db:"status"`
	Note          *string    `db:"note"`
	ActorID       *uuid.UUID `db:"actor_id"`
	CreatedAt     time.Time  `db:"created_at"`
}

func (r historyRow) toModel() *model.StatusHistoryEntry {
	return &model.StatusHistoryEntry{
		ID:            r.ID,
		Seq:           r.Seq,
		ApplicationID: r.ApplicationID,
		Status:        model.ParseLegacyStatus(r.Status),
		Note:          r.Note,
		ActorID:       r.ActorID,
		CreatedAt:     r.CreatedAt,
	}
}

const applicationColumns = `id, user_id, job_id, status, created_at, updated_at`

func (r *applicationRepository) Create(ctx context.Context, app *model.Application, seed *model.StatusHistoryEntry) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applications (id, user_id, job_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, app.ID, app.UserID, app.JobID, app.Status, app.CreatedAt, app.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Conflict("application already exists for this job", err)
			}
			return apperrors.StoreUnavailable("create application", err)
		}

		if seed != nil {
			if err := insertHistory(ctx, tx, seed); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *applicationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	var row applicationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	if err != nil {
		return nil, storeErr("application", "get application", err)
	}
	return row.toModel(), nil
}

func (r *applicationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Application, error) {
	var rows []applicationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, storeErr("application", "list applications", err)
	}

	apps := make([]*model.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toModel())
	}
	return apps, nil
}

// Transition locks the application row, lets fn validate the change, then
// writes the status and the history entry in the same transaction. Concurrent
// transitions on one application serialize on the row lock.
func (r *applicationRepository) Transition(ctx context.Context, id uuid.UUID, fn repository.TransitionFunc) (*model.Application, *model.StatusHistoryEntry, error) {
	var (
		app   *model.Application
		entry *model.StatusHistoryEntry
	)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var row applicationRow
		err := tx.GetContext(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return storeErr("application", "lock application", err)
		}

		app = row.toModel()
		entry, err = fn(app)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3
		`, app.Status, app.UpdatedAt, app.ID)
		if err != nil {
			return apperrors.StoreUnavailable("update application status", err)
		}

		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		return nil, nil, err
	}
	return app, entry, nil
}

func (r *applicationRepository) ListHistory(ctx context.Context, applicationID uuid.UUID) ([]*model.StatusHistoryEntry, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, seq, application_id, status, note, actor_id, created_at
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY seq ASC
	`, applicationID)
	if err != nil {
		return nil, storeErr("status history", "list status history", err)
	}

	entries := make([]*model.StatusHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *model.StatusHistoryEntry) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO application_status_history (id, application_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, entry.ID, entry.ApplicationID, entry.Status, entry.Note, entry.ActorID, entry.CreatedAt).Scan(&entry.Seq)
	if err != nil {
		return apperrors.StoreUnavailable("append status history", err)
	}
	return nil
}
