package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
)

// TransitionFunc validates and applies a status change to the locked
// application row. Returning an error aborts the transaction; returning an entry
// appends it to the history ledger in the same transaction.
type TransitionFunc func(app *model.Application) (*model.StatusHistoryEntry, error)

// All repository interfaces in one file
type (
	// ApplicationRepository owns applications and their status history ledger.
	ApplicationRepository interface {
		Create(ctx context.Context, app *model.Application, seed *model.StatusHistoryEntry) error
		Get(ctx context.Context, id uuid.UUID) (*model.Application, error)
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Application, error)
		Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*model.Application, *model.StatusHistoryEntry, error)
		ListHistory(ctx context.Context, applicationID uuid.UUID) ([]*model.StatusHistoryEntry, error)
	}

	// NotificationRepository is the notification ledger.
	NotificationRepository interface {
		Create(ctx context.Context, record *model.NotificationRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.NotificationRecord, error)
		ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.NotificationRecord, error)
		UpdateDelivery(ctx context.Context, id uuid.UUID, update model.DeliveryUpdate) error
	}

	PreferencesRepository interface {
		Get(ctx context.Context, userID uuid.UUID) (*model.EmailPreferences, error)
		Upsert(ctx context.Context, prefs *model.EmailPreferences) error
	}

	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		// ListDigestSubscribers pages through users whose preferences (or the
		// defaults, when no row exists) opt into the job alert digest.
		ListDigestSubscribers(ctx context.Context, after uuid.UUID, limit int) ([]*model.User, error)
	}

	JobRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
		ListPostedSince(ctx context.Context, since time.Time, limit int) ([]*model.Job, error)
	}
)
