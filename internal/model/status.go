package model

import (
	"fmt"
	"strings"

	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

// ApplicationStatus is the closed set of states an application moves through.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusShortlisted ApplicationStatus = "shortlisted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusAccepted    ApplicationStatus = "accepted"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ApplicationStatus{
	StatusPending,
	StatusUnderReview,
	StatusShortlisted,
	StatusRejected,
	StatusAccepted,
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusShortlisted, StatusRejected, StatusAccepted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusAccepted
}

// Label is the human readable form used in notifications.
func (s ApplicationStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusUnderReview:
		return "Under review"
	case StatusShortlisted:
		return "Shortlisted"
	case StatusRejected:
		return "Not selected"
	case StatusAccepted:
		return "Accepted"
	}
	return string(s)
}

// ParseStatus parses API input strictly. Only the canonical values are accepted.
func ParseStatus(raw string) (ApplicationStatus, error) {
	s := ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", apperrors.BadRequest(fmt.Sprintf("unknown application status %q", raw), nil)
	}
	return s, nil
}

var legacyStatuses = map[string]ApplicationStatus{
	"pending":             StatusPending,
	"applied":             StatusPending,
	"submitted":           StatusPending,
	"new":                 StatusPending,
	"received":            StatusPending,
	"under_review":        StatusUnderReview,
	"in_review":           StatusUnderReview,
	"review":              StatusUnderReview,
	"reviewing":           StatusUnderReview,
	"screening":           StatusUnderReview,
	"shortlisted":         StatusShortlisted,
	"interview":           StatusShortlisted,
	"interviewing":        StatusShortlisted,
	"interview_scheduled": StatusShortlisted,
	"invited":             StatusShortlisted,
	"rejected":            StatusRejected,
	"declined":            StatusRejected,
	"not_selected":        StatusRejected,
	"accepted":            StatusAccepted,
	"offer":               StatusAccepted,
	"offered":             StatusAccepted,
	"hired":               StatusAccepted,
}

// ParseLegacyStatus maps stored values, including free-text values written by
// older clients ("Interview Scheduled", "Applied"), onto the closed enumeration.
// Unrecognized values map to StatusPending.
func ParseLegacyStatus(raw string) ApplicationStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	if s, ok := legacyStatuses[key]; ok {
		return s
	}
	return StatusPending
}

// CanTransition validates a move from one status to another. Terminal statuses
// have no outbound edges; every other status may move to any different
// non-initial status, backwards included.
func CanTransition(from, to ApplicationStatus) error {
	if !to.Valid() {
		return apperrors.BadRequest(fmt.Sprintf("unknown application status %q", to), nil)
	}
	if from.IsTerminal() || to == StatusPending || from == to {
		return apperrors.InvalidTransition(string(from), string(to))
	}
	return nil
}
