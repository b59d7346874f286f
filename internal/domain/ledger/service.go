package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/travo/travo-api/internal/pkg/metrics"
)

// Service is the single entry point for mutating account balances.
type Service interface {
	// Apply atomically applies a signed credit delta and appends the
	// ledger entry. Returns *InsufficientBalanceError when a debit would
	// drive the balance negative; no entry is persisted in that case.
	Apply(ctx context.Context, accountID uuid.UUID, delta int64, kind EntryKind, description string, amount decimal.NullDecimal) (*Entry, error)

	// Summary returns the balance and credits used since the start of
	// the current billing month.
	Summary(ctx context.Context, accountID uuid.UUID) (*Summary, error)

	// ListEntries returns paginated entry history for an account.
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, error)
}

type service struct {
	repo Repository
}

// NewService creates the ledger service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Apply(ctx context.Context, accountID uuid.UUID, delta int64, kind EntryKind, description string, amount decimal.NullDecimal) (*Entry, error) {
	if err := validateDelta(delta, kind); err != nil {
		return nil, err
	}

	entry, err := s.repo.Apply(ctx, accountID, delta, kind, description, amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			metrics.LedgerOperations.WithLabelValues(string(kind), "insufficient").Inc()
			return nil, err
		}
		metrics.LedgerOperations.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}

	metrics.LedgerOperations.WithLabelValues(string(kind), "ok").Inc()
	log.Info().
		Str("account_id", accountID.String()).
		Str("kind", string(kind)).
		Int64("delta", delta).
		Str("entry_id", entry.ID.String()).
		Msg("Ledger entry applied")

	return entry, nil
}

func (s *service) Summary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	return s.repo.Summary(ctx, accountID)
}

func (s *service) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, error) {
	return s.repo.ListEntries(ctx, accountID, limit, offset)
}

// validateDelta rejects zero deltas and sign/kind mismatches before any
// storage work: usage debits, purchases and refunds credit.
func validateDelta(delta int64, kind EntryKind) error {
	switch kind {
	case KindUsage:
		if delta >= 0 {
			return ErrInvalidDelta
		}
	case KindPurchase, KindRefund:
		if delta <= 0 {
			return ErrInvalidDelta
		}
	default:
		return ErrInvalidDelta
	}
	return nil
}
