package events

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies a domain event kind. The set is closed: webhook
// subscriptions and payload schemas are defined per name.
type Name string

const (
	SMSSent        Name = "sms.sent"
	SMSDelivered   Name = "sms.delivered"
	SMSFailed      Name = "sms.failed"
	EmailSent      Name = "email.sent"
	EmailBounced   Name = "email.bounced"
	EmailFailed    Name = "email.failed"
	PaymentApplied Name = "payment.verified"
)

// All lists every event name a webhook subscription may select.
func All() []Name {
	return []Name{SMSSent, SMSDelivered, SMSFailed, EmailSent, EmailBounced, EmailFailed, PaymentApplied}
}

// Valid reports whether s is a known event name.
func Valid(s string) bool {
	for _, n := range All() {
		if string(n) == s {
			return true
		}
	}
	return false
}

// Event is a domain event published on the in-process bus.
// Data holds the fixed payload struct for the event's kind
// (MessagePayload or PaymentPayload).
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Name       Name        `json:"event"`
	AccountID  uuid.UUID   `json:"account_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// MessagePayload is the payload schema for sms.* and email.* events.
type MessagePayload struct {
	MessageID uuid.UUID  `json:"message_id"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient"`
	Credits   int64      `json:"credits"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
}

// PaymentPayload is the payload schema for payment.verified.
type PaymentPayload struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Credits   int64  `json:"credits"`
}

// New builds an event with a fresh id and timestamp.
func New(name Name, accountID uuid.UUID, data interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Name:       name,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}
