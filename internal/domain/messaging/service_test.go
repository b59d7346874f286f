package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/events"
)

type fakeLedger struct {
	mu      sync.Mutex
	balance int64
	fail    error
}

func (f *fakeLedger) Apply(_ context.Context, accountID uuid.UUID, delta int64, kind ledger.EntryKind, _ string, _ decimal.NullDecimal) (*ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	next := f.balance + delta
	if next < 0 {
		return nil, &ledger.InsufficientBalanceError{Shortfall: -next}
	}
	f.balance = next
	return &ledger.Entry{ID: uuid.New(), AccountID: accountID, Kind: kind, CreditDelta: delta}, nil
}

func (f *fakeLedger) Summary(context.Context, uuid.UUID) (*ledger.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ledger.Summary{Balance: f.balance}, nil
}

func (f *fakeLedger) ListEntries(context.Context, uuid.UUID, int, int) ([]ledger.Entry, error) {
	return nil, nil
}

type fakeRepo struct {
	inserted []*Message
	failAt   int // fail the nth Insert (1-based); 0 means never
}

func (f *fakeRepo) Insert(_ context.Context, m *Message) error {
	if f.failAt > 0 && len(f.inserted)+1 == f.failAt {
		return errors.New("connection reset")
	}
	f.inserted = append(f.inserted, m)
	return nil
}

func (f *fakeRepo) ListByAccount(context.Context, uuid.UUID, Channel, int, int) ([]Message, error) {
	out := make([]Message, 0, len(f.inserted))
	for _, m := range f.inserted {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeRepo) CountByAccount(context.Context, uuid.UUID, Channel) (int, error) {
	return len(f.inserted), nil
}

func (f *fakeRepo) StatsByAccount(context.Context, uuid.UUID) (*Stats, error) {
	return &Stats{}, nil
}

type fakeTransport struct {
	outcome *Outcome
	err     error
	calls   int
}

func (f *fakeTransport) Send(context.Context, SendUnit) (*Outcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func smsUnit(body string) SendUnit {
	return SendUnit{Channel: ChannelSMS, Recipient: "+15550001111", Body: body}
}

func TestSendUnitCost(t *testing.T) {
	tests := []struct {
		name string
		unit SendUnit
		want int64
	}{
		{"empty sms still costs one segment", smsUnit(""), 1},
		{"one full segment", smsUnit(strings.Repeat("a", 160)), 1},
		{"one char over", smsUnit(strings.Repeat("a", 161)), 2},
		{"two segments", smsUnit(strings.Repeat("a", 320)), 2},
		{"three segments", smsUnit(strings.Repeat("a", 321)), 3},
		{"multibyte body billed per rune", smsUnit(strings.Repeat("ы", 160)), 1},
		{"multibyte one rune over", smsUnit(strings.Repeat("ы", 161)), 2},
		{"email is flat rate", SendUnit{Channel: ChannelEmail, Recipient: "a@b.co", Body: strings.Repeat("a", 5000)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.unit.Cost(); got != tt.want {
				t.Errorf("Cost() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeterNoUnits(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeLedger{}, nil, nil)
	if _, err := svc.Meter(context.Background(), uuid.New(), nil); !errors.Is(err, ErrNoUnits) {
		t.Fatalf("Meter(nil) error = %v, want ErrNoUnits", err)
	}
}

func TestMeterSingleUnitDebitsSegmentCost(t *testing.T) {
	ldg := &fakeLedger{balance: 10}
	repo := &fakeRepo{}
	svc := NewService(repo, ldg, nil, events.NewBus())

	result, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit(strings.Repeat("a", 320))})
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}
	if result.Sent != 1 || result.Failed != 0 {
		t.Fatalf("sent/failed = %d/%d, want 1/0", result.Sent, result.Failed)
	}
	if result.BatchID.Valid {
		t.Error("single unit should not get a batch id")
	}
	if got := result.Messages[0].Credits; got != 2 {
		t.Errorf("Credits = %d, want 2", got)
	}
	if ldg.balance != 8 {
		t.Errorf("balance = %d, want 8", ldg.balance)
	}
	if result.Messages[0].Status != StatusSent {
		t.Errorf("Status = %s, want sent", result.Messages[0].Status)
	}
}

// A bulk send against a balance that covers only part of the batch must
// debit the covered units in input order and fail the rest, each unit
// independently, with no rollback of the earlier successes.
func TestMeterBulkPartialFailure(t *testing.T) {
	ldg := &fakeLedger{balance: 5}
	repo := &fakeRepo{}
	svc := NewService(repo, ldg, nil, events.NewBus())

	units := make([]SendUnit, 10)
	for i := range units {
		units[i] = smsUnit("hello")
	}

	result, err := svc.Meter(context.Background(), uuid.New(), units)
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}

	if result.Sent != 5 || result.Failed != 5 {
		t.Fatalf("sent/failed = %d/%d, want 5/5", result.Sent, result.Failed)
	}
	if !result.BatchID.Valid {
		t.Error("bulk send should carry a batch id")
	}
	if len(result.Messages) != 10 {
		t.Fatalf("got %d messages, want 10", len(result.Messages))
	}

	for i, msg := range result.Messages {
		if i < 5 {
			if msg.Status != StatusSent {
				t.Errorf("unit %d: status = %s, want sent", i, msg.Status)
			}
			if msg.Credits != 1 {
				t.Errorf("unit %d: credits = %d, want 1", i, msg.Credits)
			}
		} else {
			if msg.Status != StatusFailed {
				t.Errorf("unit %d: status = %s, want failed", i, msg.Status)
			}
			if msg.FailReason.String != ReasonInsufficientCredits {
				t.Errorf("unit %d: reason = %q, want %q", i, msg.FailReason.String, ReasonInsufficientCredits)
			}
			if msg.Credits != 0 {
				t.Errorf("unit %d: credits = %d, want 0 (nothing debited)", i, msg.Credits)
			}
		}
		if !msg.BatchID.Valid || msg.BatchID.UUID != result.BatchID.UUID {
			t.Errorf("unit %d: batch id not propagated", i)
		}
	}

	if ldg.balance != 0 {
		t.Errorf("balance = %d, want 0", ldg.balance)
	}
	if len(repo.inserted) != 10 {
		t.Errorf("persisted %d rows, want 10 (failed units are recorded too)", len(repo.inserted))
	}
}

func TestMeterStorageFailureAbortsBatch(t *testing.T) {
	ldg := &fakeLedger{balance: 100}
	repo := &fakeRepo{failAt: 3}
	svc := NewService(repo, ldg, nil, nil)

	units := []SendUnit{smsUnit("a"), smsUnit("b"), smsUnit("c"), smsUnit("d")}
	result, err := svc.Meter(context.Background(), uuid.New(), units)
	if !errors.Is(err, ErrBatchAborted) {
		t.Fatalf("Meter() error = %v, want ErrBatchAborted", err)
	}

	// Units before the failing one keep their outcomes.
	if len(result.Messages) != 2 {
		t.Fatalf("got %d metered units, want 2", len(result.Messages))
	}
	if result.Sent != 2 {
		t.Errorf("sent = %d, want 2", result.Sent)
	}
}

func TestMeterLedgerStorageFailure(t *testing.T) {
	ldg := &fakeLedger{fail: errors.New("pq: connection refused")}
	svc := NewService(&fakeRepo{}, ldg, nil, nil)

	_, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit("hi")})
	if !errors.Is(err, ErrBatchAborted) {
		t.Fatalf("Meter() error = %v, want ErrBatchAborted", err)
	}
}

// A transport failure marks the unit failed but the debit stands.
func TestMeterTransportFailureKeepsDebit(t *testing.T) {
	ldg := &fakeLedger{balance: 5}
	tr := &fakeTransport{err: errors.New("gateway timeout")}
	svc := NewService(&fakeRepo{}, ldg, tr, nil)

	result, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit("hi")})
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}

	msg := result.Messages[0]
	if msg.Status != StatusFailed {
		t.Errorf("status = %s, want failed", msg.Status)
	}
	if msg.FailReason.String != ReasonTransportError {
		t.Errorf("reason = %q, want %q", msg.FailReason.String, ReasonTransportError)
	}
	if msg.Credits != 1 {
		t.Errorf("credits = %d, want 1 (debit is not rolled back)", msg.Credits)
	}
	if ldg.balance != 4 {
		t.Errorf("balance = %d, want 4", ldg.balance)
	}
}

func TestMeterTransportOutcomeRecorded(t *testing.T) {
	ldg := &fakeLedger{balance: 5}
	tr := &fakeTransport{outcome: &Outcome{Status: StatusSent, ProviderID: "prov_123"}}
	svc := NewService(&fakeRepo{}, ldg, tr, nil)

	result, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit("hi")})
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}
	if got := result.Messages[0].ProviderID.String; got != "prov_123" {
		t.Errorf("provider id = %q, want prov_123", got)
	}
	if tr.calls != 1 {
		t.Errorf("transport called %d times, want 1", tr.calls)
	}
}

// Failed units never reach the transport: the debit gate comes first.
func TestMeterInsufficientSkipsTransport(t *testing.T) {
	ldg := &fakeLedger{balance: 0}
	tr := &fakeTransport{outcome: &Outcome{Status: StatusSent}}
	svc := NewService(&fakeRepo{}, ldg, tr, nil)

	result, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit("hi")})
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}
	if result.Messages[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed", result.Messages[0].Status)
	}
	if tr.calls != 0 {
		t.Errorf("transport called %d times, want 0", tr.calls)
	}
}

func TestMeterPublishesEvents(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var seen []events.Name
	bus.Subscribe(func(evt events.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.Name)
	})

	ldg := &fakeLedger{balance: 1}
	svc := NewService(&fakeRepo{}, ldg, nil, bus)

	_, err := svc.Meter(context.Background(), uuid.New(), []SendUnit{smsUnit("a"), smsUnit("b")})
	if err != nil {
		t.Fatalf("Meter() error = %v", err)
	}
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("got %d events, want 2", len(seen))
	}
	var sent, failed int
	for _, name := range seen {
		switch name {
		case events.SMSSent:
			sent++
		case events.SMSFailed:
			failed++
		}
	}
	if sent != 1 || failed != 1 {
		t.Errorf("sent/failed events = %d/%d, want 1/1", sent, failed)
	}
}
