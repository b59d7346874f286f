package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind defines supported ledger entry kinds.
type EntryKind string

const (
	KindPurchase EntryKind = "purchase"
	KindUsage    EntryKind = "usage"
	KindRefund   EntryKind = "refund"
)

// EntryStatus is the lifecycle state of a ledger entry. Entries are
// immutable once completed or failed.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// Entry is an append-only ledger row. The account balance at any time
// equals the sum of completed entries' credit deltas.
type Entry struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	AccountID   uuid.UUID           `db:"account_id" json:"account_id"`
	Kind        EntryKind           `db:"kind" json:"kind"`
	CreditDelta int64               `db:"credit_delta" json:"credit_delta"`
	Amount      decimal.NullDecimal `db:"amount" json:"amount,omitempty"`
	Description string              `db:"description" json:"description"`
	Status      EntryStatus         `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// Summary is the read-only balance projection for an account.
type Summary struct {
	Balance       int64 `json:"balance"`
	UsedThisMonth int64 `json:"used_this_month"`
}
