package webhook

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/travo/travo-api/internal/events"
)

// Subscription is a customer endpoint that receives signed event
// notifications. Events holds the event names it selected; Secret is
// the HMAC key handed to the customer once at creation.
type Subscription struct {
	ID              uuid.UUID      `db:"id"`
	AccountID       uuid.UUID      `db:"account_id"`
	URL             string         `db:"url"`
	Secret          string         `db:"secret"`
	Events          pq.StringArray `db:"events"`
	Active          bool           `db:"active"`
	LastTriggeredAt sql.NullTime   `db:"last_triggered_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// Wants reports whether the subscription selected this event name.
func (s *Subscription) Wants(name events.Name) bool {
	for _, e := range s.Events {
		if e == string(name) {
			return true
		}
	}
	return false
}

// DeliveryLog records a single delivery attempt. Every attempt writes
// one row, success or not.
type DeliveryLog struct {
	ID             uuid.UUID      `db:"id"`
	SubscriptionID uuid.UUID      `db:"subscription_id"`
	EventID        uuid.UUID      `db:"event_id"`
	EventName      string         `db:"event_name"`
	Attempt        int            `db:"attempt"`
	StatusCode     sql.NullInt32  `db:"status_code"`
	Success        bool           `db:"success"`
	Error          sql.NullString `db:"error"`
	DurationMS     int64          `db:"duration_ms"`
	CreatedAt      time.Time      `db:"created_at"`
}
