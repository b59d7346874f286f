package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists message history
type Repository interface {
	Insert(ctx context.Context, m *Message) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, channel Channel, limit, offset int) ([]Message, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID, channel Channel) (int, error)
	StatsByAccount(ctx context.Context, accountID uuid.UUID) (*Stats, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates message repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, m *Message) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx2, `
		INSERT INTO messages (id, account_id, batch_id, channel, recipient, sender_id, subject, body, credits, status, fail_reason, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, m.ID, m.AccountID, m.BatchID, m.Channel, m.Recipient, m.SenderID, m.Subject, m.Body, m.Credits, m.Status, m.FailReason, m.ProviderID,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, channel Channel, limit, offset int) ([]Message, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	messages := make([]Message, 0)
	err := r.db.SelectContext(ctx2, &messages, `
		SELECT * FROM messages
		WHERE account_id = $1 AND channel = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, accountID, channel, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (r *repository) CountByAccount(ctx context.Context, accountID uuid.UUID, channel Channel) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := r.db.GetContext(ctx2, &count,
		`SELECT COUNT(*) FROM messages WHERE account_id = $1 AND channel = $2`, accountID, channel)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (r *repository) StatsByAccount(ctx context.Context, accountID uuid.UUID) (*Stats, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Stats
	err := r.db.GetContext(ctx2, &s, `
		SELECT
			COUNT(*) FILTER (WHERE channel = 'sms' AND status <> 'failed')   AS sms_sent,
			COUNT(*) FILTER (WHERE channel = 'sms')                          AS sms_total,
			COUNT(*) FILTER (WHERE channel = 'email' AND status <> 'failed') AS email_sent,
			COUNT(*) FILTER (WHERE channel = 'email')                        AS email_total
		FROM messages
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &Stats{}, nil
		}
		return nil, fmt.Errorf("message stats: %w", err)
	}
	return &s, nil
}
