package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of an account the notification pipeline reads.
type User struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Email string    `json:"email" db:"email"`
	Name  string    `json:"name" db:"name"`
}

// Job is the subset of a job posting the notification pipeline reads.
type Job struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Title    string    `json:"title" db:"title"`
	Company  string    `json:"company" db:"company"`
	Location string    `json:"location" db:"location"`
	PostedAt time.Time `json:"posted_at" db:"posted_at"`
}
