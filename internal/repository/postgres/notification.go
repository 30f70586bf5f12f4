package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

const notificationColumns = `id, user_id, kind, recipient, subject, payload, status, attempts, last_error, sent_at, created_at, updated_at`

func (r *notificationRepository) Create(ctx context.Context, record *model.NotificationRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	if record.Status == "" {
		record.Status = model.NotificationStatusPending
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, kind, recipient, subject, payload,
			status, attempts, last_error, sent_at, created_at, updated_at
		) VALUES (
			:id, :user_id, :kind, :recipient, :subject, :payload,
			:status, :attempts, :last_error, :sent_at, :created_at, :updated_at
		)
	`, record)
	if err != nil {
		return apperrors.StoreUnavailable("create notification", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.NotificationRecord, error) {
	var record model.NotificationRecord
	err := r.db.GetContext(ctx, &record, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return nil, storeErr("notification", "get notification", err)
	}
	return &record, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.NotificationRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records := []*model.NotificationRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, storeErr("notification", "list notifications", err)
	}
	return records, nil
}

func (r *notificationRepository) UpdateDelivery(ctx context.Context, id uuid.UUID, update model.DeliveryUpdate) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $1,
			attempts = $2,
			last_error = $3,
			sent_at = COALESCE($4, sent_at),
			updated_at = NOW()
		WHERE id = $5
	`, update.Status, update.Attempts, update.LastError, update.SentAt, id)
	if err != nil {
		return apperrors.StoreUnavailable("update notification delivery", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.StoreUnavailable("update notification delivery", err)
	}
	if rows == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}
