package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/travo/travo-api/internal/domain/ledger"
)

type fakeRepo struct {
	balance int64
	entries []ledger.Entry
}

func (f *fakeRepo) Apply(ctx context.Context, accountID uuid.UUID, delta int64, kind ledger.EntryKind, description string, amount decimal.NullDecimal) (*ledger.Entry, error) {
	next := f.balance + delta
	if next < 0 {
		return nil, &ledger.InsufficientBalanceError{Shortfall: -next}
	}
	f.balance = next
	entry := ledger.Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        kind,
		CreditDelta: delta,
		Amount:      amount,
		Description: description,
		Status:      ledger.StatusCompleted,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeRepo) Summary(ctx context.Context, accountID uuid.UUID) (*ledger.Summary, error) {
	var used int64
	for _, e := range f.entries {
		if e.Kind == ledger.KindUsage && e.Status == ledger.StatusCompleted {
			used += -e.CreditDelta
		}
	}
	return &ledger.Summary{Balance: f.balance, UsedThisMonth: used}, nil
}

func (f *fakeRepo) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]ledger.Entry, error) {
	return f.entries, nil
}

func TestApplyRejectsInvalidDeltas(t *testing.T) {
	svc := ledger.NewService(&fakeRepo{balance: 100})
	accountID := uuid.New()

	tests := []struct {
		name  string
		delta int64
		kind  ledger.EntryKind
	}{
		{"zero usage", 0, ledger.KindUsage},
		{"positive usage", 5, ledger.KindUsage},
		{"negative purchase", -5, ledger.KindPurchase},
		{"zero refund", 0, ledger.KindRefund},
		{"unknown kind", 1, ledger.EntryKind("bonus")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(context.Background(), accountID, tt.delta, tt.kind, "test", decimal.NullDecimal{})
			if !errors.Is(err, ledger.ErrInvalidDelta) {
				t.Fatalf("expected ErrInvalidDelta, got %v", err)
			}
		})
	}
}

func TestApplyInsufficientBalanceCarriesShortfall(t *testing.T) {
	svc := ledger.NewService(&fakeRepo{balance: 3})

	_, err := svc.Apply(context.Background(), uuid.New(), -10, ledger.KindUsage, "debit", decimal.NullDecimal{})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var insufficientErr *ledger.InsufficientBalanceError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("expected *InsufficientBalanceError, got %T", err)
	}
	if insufficientErr.Shortfall != 7 {
		t.Fatalf("expected shortfall 7, got %d", insufficientErr.Shortfall)
	}
}

func TestSummaryEqualsCompletedEntryDeltas(t *testing.T) {
	repo := &fakeRepo{}
	svc := ledger.NewService(repo)
	accountID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, accountID, 1000, ledger.KindPurchase, "purchase", decimal.NullDecimal{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Apply(ctx, accountID, -2, ledger.KindUsage, "sms", decimal.NullDecimal{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Apply(ctx, accountID, -1, ledger.KindUsage, "email", decimal.NullDecimal{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Apply(ctx, accountID, 1, ledger.KindRefund, "refund", decimal.NullDecimal{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := svc.Summary(ctx, accountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var want int64
	for _, e := range repo.entries {
		if e.Status == ledger.StatusCompleted {
			want += e.CreditDelta
		}
	}
	if summary.Balance != want {
		t.Fatalf("expected balance %d, got %d", want, summary.Balance)
	}
	if summary.UsedThisMonth != 3 {
		t.Fatalf("expected used this month 3, got %d", summary.UsedThisMonth)
	}
}
