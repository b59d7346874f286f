package messaging

import (
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Channel is the message transport channel
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Status is the final outcome of a send unit
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered" // set by carrier delivery receipts
	StatusFailed    Status = "failed"
)

// Failure reasons recorded on failed units
const (
	ReasonInsufficientCredits = "insufficient_credits"
	ReasonTransportError      = "transport_error"
)

// SMS messages are billed per 160-character segment; email is flat.
const (
	smsSegmentLength = 160
	emailUnitCost    = 1
)

// SendUnit is one logical send: one SMS to one phone number or one
// email to one recipient. It is the smallest meterable action.
type SendUnit struct {
	Channel   Channel
	Recipient string
	SenderID  string
	Subject   string
	Body      string
}

// Cost returns the unit's credit cost: ceil(chars/160) for SMS
// (minimum one segment, characters counted as runes), a flat 1 for
// email.
func (u SendUnit) Cost() int64 {
	if u.Channel == ChannelEmail {
		return emailUnitCost
	}
	segments := (utf8.RuneCountInString(u.Body) + smsSegmentLength - 1) / smsSegmentLength
	if segments < 1 {
		segments = 1
	}
	return int64(segments)
}

// Message is a persisted send unit with its metering and transport
// outcome. BatchID correlates units of one bulk send.
type Message struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	AccountID  uuid.UUID      `db:"account_id" json:"account_id"`
	BatchID    uuid.NullUUID  `db:"batch_id" json:"batch_id,omitempty"`
	Channel    Channel        `db:"channel" json:"channel"`
	Recipient  string         `db:"recipient" json:"recipient"`
	SenderID   sql.NullString `db:"sender_id" json:"sender_id,omitempty"`
	Subject    sql.NullString `db:"subject" json:"subject,omitempty"`
	Body       string         `db:"body" json:"body"`
	Credits    int64          `db:"credits" json:"credits"`
	Status     Status         `db:"status" json:"status"`
	FailReason sql.NullString `db:"fail_reason" json:"fail_reason,omitempty"`
	ProviderID sql.NullString `db:"provider_id" json:"provider_id,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// MeterResult reports per-unit outcomes of one meter call, in input order.
type MeterResult struct {
	BatchID  uuid.NullUUID `json:"batch_id,omitempty"`
	Messages []*Message    `json:"messages"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
}

// Stats is the dashboard projection over message history.
type Stats struct {
	SMSSent     int64 `db:"sms_sent"`
	SMSTotal    int64 `db:"sms_total"`
	EmailSent   int64 `db:"email_sent"`
	EmailTotal  int64 `db:"email_total"`
}
