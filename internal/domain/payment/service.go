package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/events"
	"github.com/travo/travo-api/internal/pkg/metrics"
	"github.com/travo/travo-api/internal/pkg/paystack"
)

// Gateway is the slice of the Paystack client the reconciler needs.
type Gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

// Service initiates top-ups and reconciles gateway verdicts into ledger
// credits. Reconcile is safe to call any number of times per reference:
// exactly one call applies the purchase.
type Service struct {
	repo        Repository
	ledger      ledger.Service
	gateway     Gateway
	bus         *events.Bus
	callbackURL string
}

func NewService(repo Repository, ledgerSvc ledger.Service, gateway Gateway, bus *events.Bus, callbackURL string) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, gateway: gateway, bus: bus, callbackURL: callbackURL}
}

// Initiate records an unverified intent and opens a hosted checkout
// session for it. Amount is in main currency units.
func (s *Service) Initiate(ctx context.Context, accountID uuid.UUID, email string, amount decimal.Decimal) (*Checkout, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	intent := &Intent{
		ID:        uuid.New(),
		AccountID: accountID,
		Reference: "trv_" + uuid.NewString(),
		Amount:    amount,
		Credits:   CreditsFor(amount),
		Status:    StatusUnverified,
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		return nil, err
	}

	session, err := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       email,
		Amount:      amount.Mul(decimal.NewFromInt(100)).IntPart(), // subunits
		Reference:   intent.Reference,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", intent.Reference).Msg("Checkout initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &Checkout{
		AuthorizationURL: session.AuthorizationURL,
		Reference:        intent.Reference,
		Amount:           intent.Amount,
		Credits:          intent.Credits,
	}, nil
}

// Reconcile verifies a reference with the gateway and credits the
// account once. Concurrent and repeated calls are resolved by a status
// handoff on the intent row: only the caller that moves it from
// unverified to verifying talks to the gateway and applies the
// purchase; everyone else observes the settled state.
func (s *Service) Reconcile(ctx context.Context, reference string) (*Intent, error) {
	intent, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case StatusApplied, StatusRejected:
		metrics.PaymentReconciliations.WithLabelValues("duplicate").Inc()
		return intent, nil
	}

	claimed, err := s.repo.Transition(ctx, reference, StatusUnverified, StatusVerifying)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another reconciler holds or already settled this reference.
		metrics.PaymentReconciliations.WithLabelValues("duplicate").Inc()
		return s.repo.GetByReference(ctx, reference)
	}

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.release(ctx, reference)
		metrics.PaymentReconciliations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if !result.Verified {
		return s.settleUnverified(ctx, intent, result)
	}

	// Credit what the gateway actually settled, not what was asked for.
	credits := CreditsFor(result.Amount)
	amount := decimal.NullDecimal{Decimal: result.Amount, Valid: true}
	if _, err := s.ledger.Apply(ctx, intent.AccountID, credits, ledger.KindPurchase,
		"wallet top-up "+reference, amount); err != nil {
		s.release(ctx, reference)
		metrics.PaymentReconciliations.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.repo.MarkApplied(ctx, reference, result.Amount, credits); err != nil {
		// The credits are granted; the intent row is the audit trail and
		// must catch up. Surface the inconsistency loudly.
		log.Error().Err(err).Str("reference", reference).Msg("Intent finalization failed after credit")
		return nil, err
	}

	metrics.PaymentReconciliations.WithLabelValues("applied").Inc()
	log.Info().
		Str("reference", reference).
		Str("account_id", intent.AccountID.String()).
		Int64("credits", credits).
		Msg("Payment reconciled")

	if s.bus != nil {
		s.bus.Publish(events.New(events.PaymentApplied, intent.AccountID, events.PaymentPayload{
			Reference: reference,
			Amount:    result.Amount.String(),
			Credits:   credits,
		}))
	}

	return s.repo.GetByReference(ctx, reference)
}

// settleUnverified handles a gateway verdict that is not success. A
// terminal "failed" rejects the intent; anything still in flight
// (pending, abandoned checkout the user may resume) goes back to
// unverified so a later reconcile can pick it up.
func (s *Service) settleUnverified(ctx context.Context, intent *Intent, result *paystack.VerifyResult) (*Intent, error) {
	if result.Status == "failed" {
		if _, err := s.repo.Transition(ctx, intent.Reference, StatusVerifying, StatusRejected); err != nil {
			return nil, err
		}
		metrics.PaymentReconciliations.WithLabelValues("rejected").Inc()
		log.Warn().Str("reference", intent.Reference).Msg("Payment rejected by gateway")
	} else {
		s.release(ctx, intent.Reference)
		metrics.PaymentReconciliations.WithLabelValues("pending").Inc()
	}
	return s.repo.GetByReference(ctx, intent.Reference)
}

func (s *Service) release(ctx context.Context, reference string) {
	if _, err := s.repo.Transition(ctx, reference, StatusVerifying, StatusUnverified); err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("Failed to release intent claim")
	}
}
