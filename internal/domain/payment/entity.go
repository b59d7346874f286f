package payment

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the reconciliation state of a payment intent. An intent
// moves unverified -> verifying -> applied (or rejected); applied and
// rejected are terminal.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerifying  Status = "verifying"
	StatusApplied    Status = "applied"
	StatusRejected   Status = "rejected"
)

// CreditRate is how many credits one main currency unit buys.
const CreditRate = 100

// Intent is a wallet top-up awaiting (or past) gateway verification.
// Reference is the gateway transaction reference and is unique.
type Intent struct {
	ID        uuid.UUID       `db:"id"`
	AccountID uuid.UUID       `db:"account_id"`
	Reference string          `db:"reference"`
	Amount    decimal.Decimal `db:"amount"`
	Credits   int64           `db:"credits"`
	Status    Status          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
	AppliedAt sql.NullTime    `db:"applied_at"`
}

// CreditsFor converts a monetary amount to credits, rounding down.
func CreditsFor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(CreditRate)).Floor().IntPart()
}

// Checkout is the hosted-payment handoff returned by Initiate.
type Checkout struct {
	AuthorizationURL string          `json:"authorization_url"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Credits          int64           `json:"credits"`
}
