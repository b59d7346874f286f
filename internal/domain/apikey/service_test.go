package apikey

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type memKeyRepo struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*Key
}

func newMemKeyRepo() *memKeyRepo {
	return &memKeyRepo{keys: make(map[uuid.UUID]*Key)}
}

func (r *memKeyRepo) Create(_ context.Context, key *Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.ID] = &cp
	return nil
}

func (r *memKeyRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for _, k := range r.keys {
		if k.AccountID == accountID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *memKeyRepo) FindByLookup(_ context.Context, lookup string) ([]Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for _, k := range r.keys {
		if k.Lookup == lookup && k.Active {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *memKeyRepo) SetActive(_ context.Context, accountID, id uuid.UUID, active bool) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.AccountID != accountID {
		return nil, ErrNotFound
	}
	k.Active = active
	cp := *k
	return &cp, nil
}

func (r *memKeyRepo) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	return nil
}

func (r *memKeyRepo) Delete(_ context.Context, accountID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.keys, id)
	return nil
}

func TestIssueAndResolve(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	accountID := uuid.New()

	key, plaintext, err := svc.Issue(context.Background(), accountID, "production")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		t.Errorf("plaintext = %q, want %s prefix", plaintext, KeyPrefix)
	}
	if key.Hash == plaintext {
		t.Error("hash must not be the plaintext")
	}

	got, err := svc.ResolveKey(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("ResolveKey() error = %v", err)
	}
	if got != accountID {
		t.Errorf("resolved account = %s, want %s", got, accountID)
	}
}

func TestResolveRejectsBadKeys(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	accountID := uuid.New()
	_, plaintext, err := svc.Issue(context.Background(), accountID, "prod")
	if err != nil {
		t.Fatal(err)
	}

	bad := []string{
		"",
		"travo_",
		"not_a_key",
		plaintext[:len(plaintext)-1] + "x", // same lookup, wrong tail
		KeyPrefix + strings.Repeat("0", 48),
	}
	for _, raw := range bad {
		if _, err := svc.ResolveKey(context.Background(), raw); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ResolveKey(%q) error = %v, want ErrInvalidKey", raw, err)
		}
	}
}

func TestRevokedKeyStopsResolving(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	accountID := uuid.New()

	key, plaintext, err := svc.Issue(context.Background(), accountID, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Revoke(context.Background(), accountID, key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := svc.ResolveKey(context.Background(), plaintext); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ResolveKey() after revoke error = %v, want ErrInvalidKey", err)
	}
}

func TestDeactivatedKeyStopsResolving(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	accountID := uuid.New()

	key, plaintext, err := svc.Issue(context.Background(), accountID, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if !key.Active {
		t.Fatal("issued key must start active")
	}

	toggled, err := svc.SetActive(context.Background(), accountID, key.ID, false)
	if err != nil {
		t.Fatalf("SetActive(false) error = %v", err)
	}
	if toggled.Active {
		t.Fatal("expected key to be inactive after toggle")
	}
	if _, err := svc.ResolveKey(context.Background(), plaintext); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ResolveKey() on inactive key error = %v, want ErrInvalidKey", err)
	}

	if _, err := svc.SetActive(context.Background(), accountID, key.ID, true); err != nil {
		t.Fatalf("SetActive(true) error = %v", err)
	}
	got, err := svc.ResolveKey(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("ResolveKey() after reactivation error = %v", err)
	}
	if got != accountID {
		t.Errorf("resolved account = %s, want %s", got, accountID)
	}
}

func TestToggleOtherAccountsKey(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	key, _, err := svc.Issue(context.Background(), uuid.New(), "prod")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SetActive(context.Background(), uuid.New(), key.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetActive() by another account error = %v, want ErrNotFound", err)
	}
}

func TestRevokeOtherAccountsKey(t *testing.T) {
	svc := NewService(newMemKeyRepo())
	key, _, err := svc.Issue(context.Background(), uuid.New(), "prod")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Revoke(context.Background(), uuid.New(), key.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Revoke() by another account error = %v, want ErrNotFound", err)
	}
}
