package account

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Plan tiers mirror the pricing page
type Plan string

const (
	PlanFree       Plan = "free"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Account is a platform tenant. CreditBalance is owned by the ledger:
// it is only ever written inside ledger.Apply and must never go negative.
type Account struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Email         string         `db:"email" json:"email"`
	Name          sql.NullString `db:"name" json:"name,omitempty"`
	CompanyName   sql.NullString `db:"company_name" json:"company_name,omitempty"`
	Plan          Plan           `db:"plan" json:"plan"`
	CreditBalance int64          `db:"credit_balance" json:"credit_balance"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
