package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository persists subscriptions and their delivery logs.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Subscription, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Subscription, error)
	Update(ctx context.Context, accountID, id uuid.UUID, url string, eventNames []string) (*Subscription, error)
	SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Subscription, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error

	// ListActiveByEvent returns the account's active subscriptions that
	// selected the given event name.
	ListActiveByEvent(ctx context.Context, accountID uuid.UUID, eventName string) ([]Subscription, error)

	// IsActive reports whether the subscription still exists and is
	// active. The dispatcher consults it before every retry.
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)

	// TouchLastTriggered stamps last_triggered_at; called on every
	// delivery attempt, not only successful ones.
	TouchLastTriggered(ctx context.Context, id uuid.UUID) error

	InsertLog(ctx context.Context, entry *DeliveryLog) error
	ListLogs(ctx context.Context, accountID, subscriptionID uuid.UUID, limit, offset int) ([]DeliveryLog, error)
}

// WebhookRepository stores subscriptions in Postgres.
type WebhookRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, sub *Subscription) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx2, `
		INSERT INTO webhook_subscriptions (id, account_id, url, secret, events, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, sub.ID, sub.AccountID, sub.URL, sub.Secret, sub.Events, sub.Active,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert subscription", ErrStorage)
	}
	return nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Subscription, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sub Subscription
	err := r.db.GetContext(ctx2, &sub, `
		SELECT id, account_id, url, secret, events, active, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get subscription", ErrStorage)
	}
	return &sub, nil
}

func (r *WebhookRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Subscription, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	subs := make([]Subscription, 0)
	err := r.db.SelectContext(ctx2, &subs, `
		SELECT id, account_id, url, secret, events, active, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions", ErrStorage)
	}
	return subs, nil
}

func (r *WebhookRepository) Update(ctx context.Context, accountID, id uuid.UUID, url string, eventNames []string) (*Subscription, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE webhook_subscriptions
		SET url = $3, events = $4, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, id, accountID, url, pq.StringArray(eventNames))
	if err != nil {
		return nil, fmt.Errorf("%w: update subscription", ErrStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, accountID, id)
}

func (r *WebhookRepository) SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Subscription, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE webhook_subscriptions
		SET active = $3, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, id, accountID, active)
	if err != nil {
		return nil, fmt.Errorf("%w: set active", ErrStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, accountID, id)
}

func (r *WebhookRepository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		DELETE FROM webhook_subscriptions WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return fmt.Errorf("%w: delete subscription", ErrStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, accountID uuid.UUID, eventName string) ([]Subscription, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	subs := make([]Subscription, 0)
	err := r.db.SelectContext(ctx2, &subs, `
		SELECT id, account_id, url, secret, events, active, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE account_id = $1 AND active = true AND $2 = ANY(events)
	`, accountID, eventName)
	if err != nil {
		return nil, fmt.Errorf("%w: list active subscriptions", ErrStorage)
	}
	return subs, nil
}

func (r *WebhookRepository) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var active bool
	err := r.db.GetContext(ctx2, &active,
		`SELECT active FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: check active", ErrStorage)
	}
	return active, nil
}

func (r *WebhookRepository) TouchLastTriggered(ctx context.Context, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx2, `
		UPDATE webhook_subscriptions SET last_triggered_at = now() WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("%w: touch last triggered", ErrStorage)
	}
	return nil
}

func (r *WebhookRepository) InsertLog(ctx context.Context, entry *DeliveryLog) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx2, `
		INSERT INTO webhook_delivery_logs
			(id, subscription_id, event_id, event_name, attempt, status_code, success, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, entry.ID, entry.SubscriptionID, entry.EventID, entry.EventName,
		entry.Attempt, entry.StatusCode, entry.Success, entry.Error, entry.DurationMS,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert delivery log", ErrStorage)
	}
	return nil
}

func (r *WebhookRepository) ListLogs(ctx context.Context, accountID, subscriptionID uuid.UUID, limit, offset int) ([]DeliveryLog, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	logs := make([]DeliveryLog, 0)
	err := r.db.SelectContext(ctx2, &logs, `
		SELECT l.id, l.subscription_id, l.event_id, l.event_name, l.attempt,
		       l.status_code, l.success, l.error, l.duration_ms, l.created_at
		FROM webhook_delivery_logs l
		JOIN webhook_subscriptions s ON s.id = l.subscription_id
		WHERE l.subscription_id = $1 AND s.account_id = $2
		ORDER BY l.created_at DESC
		LIMIT $3 OFFSET $4
	`, subscriptionID, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list delivery logs", ErrStorage)
	}
	return logs, nil
}
