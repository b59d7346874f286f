package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// Repository persists accounts' balances and the append-only entry log.
type Repository interface {
	Apply(ctx context.Context, accountID uuid.UUID, delta int64, kind EntryKind, description string, amount decimal.NullDecimal) (*Entry, error)
	Summary(ctx context.Context, accountID uuid.UUID) (*Summary, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, error)
}

// LedgerRepository provides balance and entry-log operations on Postgres.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Apply runs read-balance, check-sufficiency, append-entry, update-balance
// as one transaction, serialized per account by a FOR UPDATE row lock.
// Operations on different accounts proceed independently.
func (r *LedgerRepository) Apply(ctx context.Context, accountID uuid.UUID, delta int64, kind EntryKind, description string, amount decimal.NullDecimal) (*Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrStorage)
	}
	defer tx.Rollback()

	// Auto-provision on first touch; registration lives upstream
	if _, err := tx.ExecContext(ctx2, `
		INSERT INTO accounts (id, email, plan, credit_balance)
		VALUES ($1, '', 'free', 0)
		ON CONFLICT (id) DO NOTHING
	`, accountID); err != nil {
		return nil, fmt.Errorf("%w: ensure account", ErrStorage)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx2,
		`SELECT credit_balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID,
	).Scan(&balance); err != nil {
		return nil, fmt.Errorf("%w: lock account row", ErrStorage)
	}

	next := balance + delta
	if next < 0 {
		return nil, &InsufficientBalanceError{Shortfall: -next}
	}

	if _, err := tx.ExecContext(ctx2,
		`UPDATE accounts SET credit_balance = $2, updated_at = now() WHERE id = $1`,
		accountID, next,
	); err != nil {
		return nil, fmt.Errorf("%w: update balance", ErrStorage)
	}

	entry := &Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        kind,
		CreditDelta: delta,
		Amount:      amount,
		Description: description,
		Status:      StatusCompleted,
	}
	if err := tx.QueryRowContext(ctx2, `
		INSERT INTO ledger_entries (id, account_id, kind, credit_delta, amount, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, entry.ID, entry.AccountID, entry.Kind, entry.CreditDelta, entry.Amount, entry.Description, entry.Status,
	).Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: insert entry", ErrStorage)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrStorage)
	}

	return entry, nil
}

func (r *LedgerRepository) Summary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Summary
	err := r.db.GetContext(ctx2, &s.Balance,
		`SELECT credit_balance FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Summary{}, nil
		}
		return nil, fmt.Errorf("%w: get balance", ErrStorage)
	}

	err = r.db.GetContext(ctx2, &s.UsedThisMonth, `
		SELECT COALESCE(-SUM(credit_delta), 0)
		FROM ledger_entries
		WHERE account_id = $1
		  AND kind = 'usage'
		  AND status = 'completed'
		  AND created_at >= date_trunc('month', now())
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: sum monthly usage", ErrStorage)
	}

	return &s, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	entries := make([]Entry, 0)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT id, account_id, kind, credit_delta, amount, description, status, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries", ErrStorage)
	}

	return entries, nil
}
