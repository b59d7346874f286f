package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/travo/travo-api/internal/events"
)

// Service manages webhook subscriptions.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a subscription and mints its signing secret. The
// secret is returned to the caller exactly once, here.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, url string, eventNames []string) (*Subscription, error) {
	if err := validateEvents(eventNames); err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:        uuid.New(),
		AccountID: accountID,
		URL:       url,
		Secret:    secret,
		Events:    pq.StringArray(eventNames),
		Active:    true,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("account_id", accountID.String()).
		Strs("events", eventNames).
		Msg("Webhook subscription created")

	return sub, nil
}

func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Subscription, error) {
	return s.repo.GetByID(ctx, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]Subscription, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, url string, eventNames []string) (*Subscription, error) {
	if err := validateEvents(eventNames); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, accountID, id, url, eventNames)
}

// SetActive toggles delivery. Deactivating stops future retries of any
// in-flight delivery; an attempt already on the wire completes.
func (s *Service) SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Subscription, error) {
	sub, err := s.repo.SetActive(ctx, accountID, id, active)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subscription_id", id.String()).
		Bool("active", active).
		Msg("Webhook subscription toggled")

	return sub, nil
}

func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

func (s *Service) Logs(ctx context.Context, accountID, id uuid.UUID, limit, offset int) ([]DeliveryLog, error) {
	return s.repo.ListLogs(ctx, accountID, id, limit, offset)
}

func validateEvents(names []string) error {
	for _, n := range names {
		if !events.Valid(n) {
			return fmt.Errorf("%w: %q", ErrInvalidEvents, n)
		}
	}
	return nil
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
