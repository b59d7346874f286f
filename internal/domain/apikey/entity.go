package apikey

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix marks every issued API key.
const KeyPrefix = "travo_"

// Key is an issued API key. Only a bcrypt hash of the full key is
// stored; Lookup is the short leading fragment used to find candidate
// rows before the hash comparison.
type Key struct {
	ID         uuid.UUID    `db:"id"`
	AccountID  uuid.UUID    `db:"account_id"`
	Name       string       `db:"name"`
	Lookup     string       `db:"lookup"`
	Hash       string       `db:"hash"`
	Active     bool         `db:"is_active"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	CreatedAt  time.Time    `db:"created_at"`
}
