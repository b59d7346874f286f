package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists issued API keys.
type Repository interface {
	Create(ctx context.Context, key *Key) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Key, error)
	FindByLookup(ctx context.Context, lookup string) ([]Key, error)
	SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Key, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}

// KeyRepository stores API keys in Postgres.
type KeyRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) Create(ctx context.Context, key *Key) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx2, `
		INSERT INTO api_keys (id, account_id, name, lookup, hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, key.ID, key.AccountID, key.Name, key.Lookup, key.Hash, key.Active,
	).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert key", ErrStorage)
	}
	return nil
}

func (r *KeyRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Key, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	keys := make([]Key, 0)
	err := r.db.SelectContext(ctx2, &keys, `
		SELECT id, account_id, name, lookup, hash, is_active, last_used_at, created_at
		FROM api_keys
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys", ErrStorage)
	}
	return keys, nil
}

func (r *KeyRepository) FindByLookup(ctx context.Context, lookup string) ([]Key, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	keys := make([]Key, 0)
	err := r.db.SelectContext(ctx2, &keys, `
		SELECT id, account_id, name, lookup, hash, is_active, last_used_at, created_at
		FROM api_keys
		WHERE lookup = $1 AND is_active = true
	`, lookup)
	if err != nil {
		return nil, fmt.Errorf("%w: find by lookup", ErrStorage)
	}
	return keys, nil
}

func (r *KeyRepository) SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Key, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var key Key
	err := r.db.GetContext(ctx2, &key, `
		UPDATE api_keys SET is_active = $3
		WHERE id = $1 AND account_id = $2
		RETURNING id, account_id, name, lookup, hash, is_active, last_used_at, created_at
	`, id, accountID, active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: set active", ErrStorage)
	}
	return &key, nil
}

func (r *KeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx2,
		`UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: touch last used", ErrStorage)
	}
	return nil
}

func (r *KeyRepository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2,
		`DELETE FROM api_keys WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("%w: delete key", ErrStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
