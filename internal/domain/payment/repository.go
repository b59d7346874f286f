package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// Repository persists payment intents keyed by gateway reference.
type Repository interface {
	Create(ctx context.Context, intent *Intent) error
	GetByReference(ctx context.Context, reference string) (*Intent, error)

	// Transition moves an intent from one status to another only if it
	// currently holds the expected status. The boolean reports whether
	// this caller won the transition; a false result with nil error means
	// another reconciler got there first.
	Transition(ctx context.Context, reference string, from, to Status) (bool, error)

	// MarkApplied finalizes a verifying intent with the amount the
	// gateway actually settled and the credits granted for it.
	MarkApplied(ctx context.Context, reference string, amount decimal.Decimal, credits int64) error
}

// PaymentRepository stores intents in Postgres.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, intent *Intent) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx2, `
		INSERT INTO payment_intents (id, account_id, reference, amount, credits, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, intent.ID, intent.AccountID, intent.Reference, intent.Amount, intent.Credits, intent.Status,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert intent", ErrStorage)
	}
	return nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*Intent, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var intent Intent
	err := r.db.GetContext(ctx2, &intent, `
		SELECT id, account_id, reference, amount, credits, status, created_at, updated_at, applied_at
		FROM payment_intents
		WHERE reference = $1
	`, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("%w: get intent", ErrStorage)
	}
	return &intent, nil
}

func (r *PaymentRepository) Transition(ctx context.Context, reference string, from, to Status) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE payment_intents
		SET status = $3, updated_at = now()
		WHERE reference = $1 AND status = $2
	`, reference, from, to)
	if err != nil {
		return false, fmt.Errorf("%w: transition intent", ErrStorage)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: transition intent", ErrStorage)
	}
	return n == 1, nil
}

func (r *PaymentRepository) MarkApplied(ctx context.Context, reference string, amount decimal.Decimal, credits int64) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE payment_intents
		SET status = $2, amount = $3, credits = $4, applied_at = now(), updated_at = now()
		WHERE reference = $1 AND status = $5
	`, reference, StatusApplied, amount, credits, StatusVerifying)
	if err != nil {
		return fmt.Errorf("%w: mark applied", ErrStorage)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark applied", ErrStorage)
	}
	if n != 1 {
		return fmt.Errorf("%w: intent no longer verifying", ErrStorage)
	}
	return nil
}
