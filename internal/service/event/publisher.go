package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/messaging"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

// Publisher hands events to the broker. Failures are logged and counted but
// never returned: the change the event describes is already committed.
type Publisher struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewPublisher(broker messaging.Broker, channel string, log *logger.Logger, m *metrics.Metrics) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		broker:  broker,
		channel: channel,
		logger:  log.With("component", "event.publisher"),
		metrics: m,
	}
}

func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	if err := p.broker.Publish(ctx, p.channel, evt); err != nil {
		if p.metrics != nil {
			p.metrics.EventsDropped.WithLabelValues(string(evt.Type)).Inc()
		}
		p.logger.Error(err, "failed to publish event",
			"event_id", evt.ID.String(),
			"event_type", string(evt.Type),
			"application_id", evt.ApplicationID.String())
		return
	}

	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	}
}
