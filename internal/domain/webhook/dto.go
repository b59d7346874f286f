package webhook

import (
	"time"
)

// CreateRequest registers a new subscription
type CreateRequest struct {
	URL    string   `json:"url" validate:"required,url,max=2048"`
	Events []string `json:"events" validate:"required,min=1,dive,webhook_event"`
}

// UpdateRequest replaces a subscription's endpoint and event selection
type UpdateRequest struct {
	URL    string   `json:"url" validate:"required,url,max=2048"`
	Events []string `json:"events" validate:"required,min=1,dive,webhook_event"`
}

// ToggleRequest flips delivery on or off
type ToggleRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SubscriptionResponse is the API shape of a subscription. Secret is
// populated only in the creation response.
type SubscriptionResponse struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Secret          string     `json:"secret,omitempty"`
	Events          []string   `json:"events"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToResponse maps a subscription; withSecret is true only at creation.
func ToResponse(sub *Subscription, withSecret bool) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:        sub.ID.String(),
		URL:       sub.URL,
		Events:    []string(sub.Events),
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
	}
	if withSecret {
		resp.Secret = sub.Secret
	}
	if sub.LastTriggeredAt.Valid {
		t := sub.LastTriggeredAt.Time
		resp.LastTriggeredAt = &t
	}
	return resp
}

// DeliveryLogResponse is the API shape of one delivery attempt
type DeliveryLogResponse struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	EventName  string    `json:"event_name"`
	Attempt    int       `json:"attempt"`
	StatusCode *int      `json:"status_code,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// LogToResponse maps a delivery log row
func LogToResponse(l *DeliveryLog) DeliveryLogResponse {
	resp := DeliveryLogResponse{
		ID:         l.ID.String(),
		EventID:    l.EventID.String(),
		EventName:  l.EventName,
		Attempt:    l.Attempt,
		Success:    l.Success,
		Error:      l.Error.String,
		DurationMS: l.DurationMS,
		CreatedAt:  l.CreatedAt,
	}
	if l.StatusCode.Valid {
		code := int(l.StatusCode.Int32)
		resp.StatusCode = &code
	}
	return resp
}
