package model

import (
	"time"

	"github.com/google/uuid"
)

// Application is one candidate's submission against a job posting.
type Application struct {
	Base
	UserID uuid.UUID         `json:"user_id" db:"user_id"`
	JobID  uuid.UUID         `json:"job_id" db:"job_id"`
	Status ApplicationStatus `json:"status" db:"status"`
}

// StatusHistoryEntry is an immutable record of one transition.
type StatusHistoryEntry struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	Seq           int64             `json:"seq" db:"seq"`
	ApplicationID uuid.UUID         `json:"application_id" db:"application_id"`
	Status        ApplicationStatus `json:"status" db:"status"`
	Note          *string           `json:"note,omitempty" db:"note"`
	ActorID       *uuid.UUID        `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Interview describes a scheduled interview for an application.
type Interview struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Location    string    `json:"location,omitempty"`
	MeetingURL  string    `json:"meeting_url,omitempty" binding:"omitempty,url"`
	Interviewer string    `json:"interviewer,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type SubmitApplicationRequest struct {
	JobID uuid.UUID `json:"job_id" binding:"required"`
}

type TransitionRequest struct {
	Status string  `json:"status" binding:"required"`
	Note   *string `json:"note,omitempty" binding:"omitempty,max=2000"`
}
