package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopupRequest starts a wallet top-up checkout
type TopupRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Email  string          `json:"email" validate:"omitempty,email"`
}

// IntentResponse is the API shape of a payment intent
type IntentResponse struct {
	Reference string     `json:"reference"`
	Amount    string     `json:"amount"`
	Credits   int64      `json:"credits"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// ToResponse maps an intent to its API shape
func ToResponse(intent *Intent) IntentResponse {
	resp := IntentResponse{
		Reference: intent.Reference,
		Amount:    intent.Amount.String(),
		Credits:   intent.Credits,
		Status:    intent.Status,
		CreatedAt: intent.CreatedAt,
	}
	if intent.AppliedAt.Valid {
		t := intent.AppliedAt.Time
		resp.AppliedAt = &t
	}
	return resp
}
