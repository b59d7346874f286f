package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/events"
	"github.com/travo/travo-api/internal/pkg/metrics"
)

// Usage debits carry no monetary amount
var decimalNone = decimal.NullDecimal{}

// Service is the metering engine: it prices send units, debits the
// ledger per unit, hands debited units to the transport collaborator
// and records each unit's outcome.
type Service struct {
	repo      Repository
	ledger    ledger.Service
	transport Transport
	bus       *events.Bus
}

// NewService creates the metering service
func NewService(repo Repository, ledgerSvc ledger.Service, transport Transport, bus *events.Bus) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, transport: transport, bus: bus}
}

// Meter processes units in input order so partial-failure behavior is
// reproducible. Each unit is metered independently: an insufficient
// balance fails that unit (and, funds being exhausted, the ones after
// it) without rolling back earlier successes. Only a storage failure
// aborts the remaining units; the partial result is still returned.
func (s *Service) Meter(ctx context.Context, accountID uuid.UUID, units []SendUnit) (*MeterResult, error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	result := &MeterResult{}
	if len(units) > 1 {
		result.BatchID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	}

	for i, unit := range units {
		msg, err := s.meterUnit(ctx, accountID, unit, result.BatchID)
		if err != nil {
			// Batch-fatal: the ledger store itself failed. Units before
			// i keep their outcomes; units from i on were never metered.
			log.Error().Err(err).
				Str("account_id", accountID.String()).
				Int("unit", i).
				Msg("Metering aborted")
			return result, fmt.Errorf("%w: unit %d: %v", ErrBatchAborted, i, err)
		}

		result.Messages = append(result.Messages, msg)
		if msg.Status == StatusFailed {
			result.Failed++
		} else {
			result.Sent++
		}
	}

	return result, nil
}

// meterUnit debits, sends and records one unit. Only storage errors are
// returned; unit-level failures are captured on the message row.
func (s *Service) meterUnit(ctx context.Context, accountID uuid.UUID, unit SendUnit, batchID uuid.NullUUID) (*Message, error) {
	cost := unit.Cost()

	msg := &Message{
		ID:        uuid.New(),
		AccountID: accountID,
		BatchID:   batchID,
		Channel:   unit.Channel,
		Recipient: unit.Recipient,
		SenderID:  nullString(unit.SenderID),
		Subject:   nullString(unit.Subject),
		Body:      unit.Body,
		Credits:   cost,
	}

	_, err := s.ledger.Apply(ctx, accountID, -cost, ledger.KindUsage,
		fmt.Sprintf("%s to %s", unit.Channel, unit.Recipient), decimalNone)
	switch {
	case err == nil:
		s.dispatch(ctx, msg, unit)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		msg.Status = StatusFailed
		msg.FailReason = nullString(ReasonInsufficientCredits)
		msg.Credits = 0 // nothing was debited
	default:
		return nil, err
	}

	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	metrics.MeteredUnits.WithLabelValues(string(msg.Channel), string(msg.Status)).Inc()
	s.publish(msg)

	return msg, nil
}

// dispatch hands a debited unit to the transport and records its
// outcome, defaulting to sent when the transport raises no error.
func (s *Service) dispatch(ctx context.Context, msg *Message, unit SendUnit) {
	if s.transport == nil {
		msg.Status = StatusSent
		return
	}

	outcome, err := s.transport.Send(ctx, unit)
	if err != nil {
		// Transport errors are per-unit, never fatal to the batch. The
		// debit stands; refunds are an out-of-band ledger operation.
		log.Warn().Err(err).
			Str("channel", string(unit.Channel)).
			Str("recipient", unit.Recipient).
			Msg("Transport send failed")
		msg.Status = StatusFailed
		msg.FailReason = nullString(ReasonTransportError)
		return
	}

	msg.Status = outcome.Status
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	msg.ProviderID = nullString(outcome.ProviderID)
	if outcome.Reason != "" {
		msg.FailReason = nullString(outcome.Reason)
	}
}

func (s *Service) publish(msg *Message) {
	if s.bus == nil {
		return
	}

	name := eventName(msg.Channel, msg.Status)
	payload := events.MessagePayload{
		MessageID: msg.ID,
		Channel:   string(msg.Channel),
		Recipient: msg.Recipient,
		Credits:   msg.Credits,
		Status:    string(msg.Status),
		Reason:    msg.FailReason.String,
	}
	if msg.BatchID.Valid {
		id := msg.BatchID.UUID
		payload.BatchID = &id
	}

	s.bus.Publish(events.New(name, msg.AccountID, payload))
}

func eventName(channel Channel, status Status) events.Name {
	switch {
	case channel == ChannelSMS && status == StatusFailed:
		return events.SMSFailed
	case channel == ChannelSMS:
		return events.SMSSent
	case status == StatusFailed:
		return events.EmailFailed
	default:
		return events.EmailSent
	}
}

// List returns message history for one channel.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, channel Channel, limit, offset int) ([]Message, int, error) {
	messages, err := s.repo.ListByAccount(ctx, accountID, channel, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByAccount(ctx, accountID, channel)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Stats returns the dashboard projection over message history.
func (s *Service) Stats(ctx context.Context, accountID uuid.UUID) (*Stats, error) {
	return s.repo.StatsByAccount(ctx, accountID)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
