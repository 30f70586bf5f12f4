package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/email"
	"github.com/jwalitptl/hiring-api/internal/model"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.NotificationRecord
	updates []model.DeliveryUpdate
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]*model.NotificationRecord)}
}

func (r *memoryRepo) Create(_ context.Context, record *model.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (*model.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("notification", nil)
	}
	cp := *record
	return &cp, nil
}

func (r *memoryRepo) ListByUser(_ context.Context, userID uuid.UUID, _ int) ([]*model.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.NotificationRecord
	for _, record := range r.records {
		if record.UserID == userID {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateDelivery(_ context.Context, id uuid.UUID, update model.DeliveryUpdate) error {
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
	r.updates = append(r.updates, update)
	return nil
}

func (r *memoryRepo) get(id uuid.UUID) *model.NotificationRecord {
	record, _ := r.Get(context.Background(), id)
	return record
}

// scriptedSender returns the queued results in order, then nil forever.
type scriptedSender struct {
	mu      sync.Mutex
	results []error
	sent    []email.Message
	sentAt  []time.Time
	clock   func() time.Time
	block   bool
}

func (s *scriptedSender) Send(ctx context.Context, msg email.Message) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.clock != nil {
		s.sentAt = append(s.sentAt, s.clock())
	}
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func (s *scriptedSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type alwaysFailing struct {
	mu    sync.Mutex
	count int
}

func (s *alwaysFailing) Send(context.Context, email.Message) error {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return errors.New("provider unavailable")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
