package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
	"github.com/jwalitptl/hiring-api/internal/notification"
	"github.com/jwalitptl/hiring-api/internal/repository"
	"github.com/jwalitptl/hiring-api/internal/templates"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/messaging"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, env notification.Envelope) (uuid.UUID, error)
}

type PreferencesReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.EmailPreferences, error)
}

const ackTimeout = 5 * time.Second

// Dispatcher turns events into queued notifications, honouring the
// recipient's email preferences. Dispatchers sharing a group split the
// events between them, so running one per replica notifies once.
type Dispatcher struct {
	broker   messaging.Broker
	channel  string
	group    string
	enqueuer Enqueuer
	prefs    PreferencesReader
	users    repository.UserRepository
	jobs     repository.JobRepository
	logger   *logger.Logger
	done     chan struct{}
}

func NewDispatcher(broker messaging.Broker, channel, group string, enqueuer Enqueuer, prefs PreferencesReader, users repository.UserRepository, jobs repository.JobRepository, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		broker:   broker,
		channel:  channel,
		group:    group,
		enqueuer: enqueuer,
		prefs:    prefs,
		users:    users,
		jobs:     jobs,
		logger:   log.With("component", "event.dispatcher"),
	}
}

// Start subscribes to the events channel and consumes it in the background
// until ctx is cancelled or the broker closes the subscription. Handling
// errors are logged; one bad event does not stop the loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	msgs, err := d.broker.Subscribe(ctx, d.channel, d.group)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", d.channel, err)
	}

	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		d.consume(ctx, msgs)
	}()

	d.logger.Info("event dispatcher started", "channel", d.channel, "group", d.group)
	return nil
}

// Wait blocks until the consumer started by Start has returned.
func (d *Dispatcher) Wait() {
	if d.done != nil {
		<-d.done
	}
}

func (d *Dispatcher) consume(ctx context.Context, msgs <-chan messaging.Delivery) {
	for msg := range msgs {
		var evt Event
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			d.logger.Error(err, "failed to decode event", "payload", string(msg.Payload))
			d.ack(ctx, msg)
			continue
		}

		err := d.Handle(ctx, evt)
		if err != nil {
			d.logger.Error(err, "failed to handle event",
				"event_id", evt.ID.String(),
				"event_type", string(evt.Type),
				"application_id", evt.ApplicationID.String())
		}
		// Left unacknowledged, the event is redelivered once the store is back.
		if apperrors.Is(err, apperrors.ErrStoreUnavailable) {
			continue
		}
		d.ack(ctx, msg)
	}
	d.logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) ack(ctx context.Context, msg messaging.Delivery) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := msg.Ack(ctx); err != nil {
		d.logger.Error(err, "failed to acknowledge event")
	}
}

// Handle enqueues the notification for evt if the user's preferences allow it.
func (d *Dispatcher) Handle(ctx context.Context, evt Event) error {
	_, err := d.handle(ctx, evt)
	return err
}

// handle returns the notification id, or uuid.Nil when nothing was enqueued.
func (d *Dispatcher) handle(ctx context.Context, evt Event) (uuid.UUID, error) {
	kind, ok := evt.NotificationKind()
	if !ok {
		d.logger.Debug("ignoring event without notification", "event_type", string(evt.Type))
		return uuid.Nil, nil
	}

	prefs, err := d.prefs.Get(ctx, evt.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load email preferences: %w", err)
	}
	if !prefs.Allows(kind) {
		d.logger.Debug("notification suppressed by preferences",
			"user_id", evt.UserID.String(),
			"kind", string(kind))
		return uuid.Nil, nil
	}

	user, err := d.users.Get(ctx, evt.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	data := templates.Data{
		RecipientName: user.Name,
		ApplicationID: evt.ApplicationID.String(),
	}
	if evt.OldStatus != "" {
		data.OldStatus = evt.OldStatus.Label()
	}
	if evt.NewStatus != "" {
		data.NewStatus = evt.NewStatus.Label()
	}
	if evt.Note != nil {
		data.Note = *evt.Note
	}
	if evt.Interview != nil {
		data.Interview = &templates.Interview{
			At:          evt.Interview.ScheduledAt,
			Location:    evt.Interview.Location,
			MeetingURL:  evt.Interview.MeetingURL,
			Interviewer: evt.Interview.Interviewer,
			Notes:       evt.Interview.Notes,
		}
	}

	job, err := d.jobs.Get(ctx, evt.JobID)
	switch {
	case err == nil:
		data.JobTitle = job.Title
		data.CompanyName = job.Company
	case apperrors.Is(err, apperrors.ErrNotFound):
		// Rendering decides whether the job is required for this kind.
	default:
		return uuid.Nil, fmt.Errorf("failed to load job: %w", err)
	}

	id, err := d.enqueuer.Enqueue(ctx, notification.Envelope{
		UserID:    evt.UserID,
		Recipient: user.Email,
		Kind:      kind,
		Data:      data,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue %s notification: %w", kind, err)
	}
	return id, nil
}
