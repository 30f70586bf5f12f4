package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// NotificationKind selects the template and the preference category.
type NotificationKind string

const (
	KindApplicationReceived NotificationKind = "application_received"
	KindStatusUpdate        NotificationKind = "status_update"
	KindInterviewScheduled  NotificationKind = "interview_scheduled"
	KindJobAlertDigest      NotificationKind = "job_alert_digest"
)

// NotificationRecord is the durable audit row for one logical notification.
// Delivery attempts update it in place.
type NotificationRecord struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	UserID    uuid.UUID          `json:"user_id" db:"user_id"`
	Kind      NotificationKind   `json:"kind" db:"kind"`
	Recipient string             `json:"recipient" db:"recipient"`
	Subject   string             `json:"subject" db:"subject"`
	Payload   Payload            `json:"payload" db:"payload"`
	Status    NotificationStatus `json:"status" db:"status"`
	Attempts  int                `json:"attempts" db:"attempts"`
	LastError *string            `json:"last_error,omitempty" db:"last_error"`
	SentAt    *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// DeliveryUpdate is the in-place mutation the delivery worker applies to a record.
type DeliveryUpdate struct {
	Status    NotificationStatus
	Attempts  int
	LastError *string
	SentAt    *time.Time
}

// Payload is the JSON snapshot of the data a notification was rendered from.
// It is written as text so lib/pq does not encode it as bytea.
type Payload json.RawMessage

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("unsupported payload type %T", src)
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}
