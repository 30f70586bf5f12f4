package model

import (
	"time"

	"github.com/google/uuid"
)

// EmailPreferences holds a user's per-category opt-in flags.
type EmailPreferences struct {
	UserID             uuid.UUID `json:"user_id" db:"user_id"`
	ApplicationUpdates bool      `json:"application_updates" db:"application_updates"`
	JobAlerts          bool      `json:"job_alerts" db:"job_alerts"`
	InterviewReminders bool      `json:"interview_reminders" db:"interview_reminders"`
	WeeklyDigest       bool      `json:"weekly_digest" db:"weekly_digest"`
	Marketing          bool      `json:"marketing" db:"marketing"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultEmailPreferences enables every transactional category and leaves
// marketing off.
func DefaultEmailPreferences(userID uuid.UUID) *EmailPreferences {
	return &EmailPreferences{
		UserID:             userID,
		ApplicationUpdates: true,
		JobAlerts:          true,
		InterviewReminders: true,
		WeeklyDigest:       true,
		Marketing:          false,
	}
}

// Allows reports whether a notification of the given kind may be sent.
func (p *EmailPreferences) Allows(kind NotificationKind) bool {
	if p == nil {
		return DefaultEmailPreferences(uuid.Nil).Allows(kind)
	}
	switch kind {
	case KindApplicationReceived, KindStatusUpdate:
		return p.ApplicationUpdates
	case KindInterviewScheduled:
		return p.InterviewReminders
	case KindJobAlertDigest:
		return p.JobAlerts && p.WeeklyDigest
	}
	return false
}

type UpdateEmailPreferencesRequest struct {
	ApplicationUpdates *bool `json:"application_updates"`
	JobAlerts          *bool `json:"job_alerts"`
	InterviewReminders *bool `json:"interview_reminders"`
	WeeklyDigest       *bool `json:"weekly_digest"`
	Marketing          *bool `json:"marketing"`
}

// Apply copies the fields present in the request onto p.
func (r *UpdateEmailPreferencesRequest) Apply(p *EmailPreferences) {
	if r.ApplicationUpdates != nil {
		p.ApplicationUpdates = *r.ApplicationUpdates
	}
	if r.JobAlerts != nil {
		p.JobAlerts = *r.JobAlerts
	}
	if r.InterviewReminders != nil {
		p.InterviewReminders = *r.InterviewReminders
	}
	if r.WeeklyDigest != nil {
		p.WeeklyDigest = *r.WeeklyDigest
	}
	if r.Marketing != nil {
		p.Marketing = *r.Marketing
	}
}
