package preferences

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/repository"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type Service interface {
	// Get returns the stored preferences, or the defaults when the user has
	// never saved any.
	Get(ctx context.Context, userID uuid.UUID) (*model.EmailPreferences, error)
	Update(ctx context.Context, userID uuid.UUID, req *model.UpdateEmailPreferencesRequest) (*model.EmailPreferences, error)
}

type service struct {
	repo repository.PreferencesRepository
}

func NewService(repo repository.PreferencesRepository) Service {
	return &service{repo: repo}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*model.EmailPreferences, error) {
	prefs, err := s.repo.Get(ctx, userID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return model.DefaultEmailPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, req *model.UpdateEmailPreferencesRequest) (*model.EmailPreferences, error) {
	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	req.Apply(prefs)
	if err := s.repo.Upsert(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}
