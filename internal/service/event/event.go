// Package event carries domain events from committed state changes to the
// notification pipeline through a messaging.Broker.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/model"
)

type Type string

const (
	TypeApplicationSubmitted Type = "application.submitted"
	TypeStatusChanged        Type = "application.status_changed"
	TypeInterviewScheduled   Type = "interview.scheduled"
)

// Event is published after the change it describes has been committed.
type Event struct {
	ID            uuid.UUID               `json:"id"`
	Type          Type                    `json:"type"`
	OccurredAt    time.Time               `json:"occurred_at"`
	ApplicationID uuid.UUID               `json:"application_id"`
	UserID        uuid.UUID               `json:"user_id"`
	JobID         uuid.UUID               `json:"job_id"`
	OldStatus     model.ApplicationStatus `json:"old_status,omitempty"`
	NewStatus     model.ApplicationStatus `json:"new_status,omitempty"`
	Note          *string                 `json:"note,omitempty"`
	ActorID       *uuid.UUID              `json:"actor_id,omitempty"`
	Interview     *model.Interview        `json:"interview,omitempty"`
}

// NotificationKind maps an event to the notification it triggers.
func (e Event) NotificationKind() (model.NotificationKind, bool) {
	switch e.Type {
	case TypeApplicationSubmitted:
		return model.KindApplicationReceived, true
	case TypeStatusChanged:
		return model.KindStatusUpdate, true
	case TypeInterviewScheduled:
		return model.KindInterviewScheduled, true
	}
	return "", false
}
