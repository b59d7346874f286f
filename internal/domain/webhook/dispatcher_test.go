package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/travo/travo-api/internal/events"
)

type memWebhookRepo struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*Subscription
	logs    []DeliveryLog
	touches int
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{subs: make(map[uuid.UUID]*Subscription)}
}

func (r *memWebhookRepo) Create(_ context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memWebhookRepo) GetByID(_ context.Context, accountID, id uuid.UUID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.AccountID != accountID {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *memWebhookRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Subscription
	for _, sub := range r.subs {
		if sub.AccountID == accountID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) Update(_ context.Context, accountID, id uuid.UUID, url string, eventNames []string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.AccountID != accountID {
		return nil, ErrNotFound
	}
	sub.URL = url
	sub.Events = pq.StringArray(eventNames)
	cp := *sub
	return &cp, nil
}

func (r *memWebhookRepo) SetActive(_ context.Context, accountID, id uuid.UUID, active bool) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.AccountID != accountID {
		return nil, ErrNotFound
	}
	sub.Active = active
	cp := *sub
	return &cp, nil
}

func (r *memWebhookRepo) Delete(_ context.Context, accountID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.AccountID != accountID {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *memWebhookRepo) ListActiveByEvent(_ context.Context, accountID uuid.UUID, eventName string) ([]Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Subscription
	for _, sub := range r.subs {
		if sub.AccountID == accountID && sub.Active && sub.Wants(events.Name(eventName)) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) IsActive(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	return ok && sub.Active, nil
}

func (r *memWebhookRepo) TouchLastTriggered(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches++
	return nil
}

func (r *memWebhookRepo) InsertLog(_ context.Context, entry *DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memWebhookRepo) ListLogs(_ context.Context, _, subscriptionID uuid.UUID, _, _ int) ([]DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DeliveryLog
	for _, l := range r.logs {
		if l.SubscriptionID == subscriptionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) logCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *memWebhookRepo) seed(t *testing.T, url string, eventNames ...string) *Subscription {
	t.Helper()
	sub := &Subscription{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		URL:       url,
		Secret:    "whsec_test",
		Events:    pq.StringArray(eventNames),
		Active:    true,
	}
	if err := r.Create(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{MaxAttempts: 5, BaseDelay: 2 * time.Millisecond, Timeout: time.Second}
}

func TestDeliverySignedAndDeliveredOnce(t *testing.T) {
	var mu sync.Mutex
	var requests int
	var gotSig, gotEvent string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		gotSig = r.Header.Get("X-Travo-Signature")
		gotEvent = r.Header.Get("X-Travo-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := newMemWebhookRepo()
	sub := repo.seed(t, srv.URL, string(events.SMSSent))
	d := NewDispatcher(repo, testConfig())

	evt := events.New(events.SMSSent, sub.AccountID, events.MessagePayload{Credits: 1})
	d.HandleEvent(evt)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("endpoint hit %d times, want 1", requests)
	}
	if gotEvent != string(events.SMSSent) {
		t.Errorf("X-Travo-Event = %q, want %q", gotEvent, events.SMSSent)
	}
	if !VerifySignature(sub.Secret, gotBody, gotSig) {
		t.Error("signature does not verify against the delivered body")
	}

	var envelope struct {
		ID    string `json:"id"`
		Event string `json:"event"`
	}
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if envelope.Event != string(events.SMSSent) {
		t.Errorf("envelope event = %q, want %q", envelope.Event, events.SMSSent)
	}

	logs, _ := repo.ListLogs(context.Background(), sub.AccountID, sub.ID, 0, 0)
	if len(logs) != 1 || !logs[0].Success {
		t.Fatalf("logs = %+v, want one successful row", logs)
	}
}

func TestDeliveryRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	var requests int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := newMemWebhookRepo()
	sub := repo.seed(t, srv.URL, string(events.PaymentApplied))
	d := NewDispatcher(repo, testConfig())

	d.HandleEvent(events.New(events.PaymentApplied, sub.AccountID, events.PaymentPayload{Credits: 100}))
	d.Wait()

	mu.Lock()
	if requests != 3 {
		t.Fatalf("endpoint hit %d times, want 3", requests)
	}
	mu.Unlock()

	logs, _ := repo.ListLogs(context.Background(), sub.AccountID, sub.ID, 0, 0)
	if len(logs) != 3 {
		t.Fatalf("got %d log rows, want 3 (one per attempt)", len(logs))
	}
	for i, l := range logs {
		if l.Attempt != i+1 {
			t.Errorf("log %d: attempt = %d, want %d", i, l.Attempt, i+1)
		}
		wantSuccess := i == 2
		if l.Success != wantSuccess {
			t.Errorf("log %d: success = %v, want %v", i, l.Success, wantSuccess)
		}
	}
}

func TestDeliveryAbandonedAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	var requests int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := newMemWebhookRepo()
	sub := repo.seed(t, srv.URL, string(events.SMSFailed))
	cfg := testConfig()
	d := NewDispatcher(repo, cfg)

	start := time.Now()
	d.HandleEvent(events.New(events.SMSFailed, sub.AccountID, events.MessagePayload{}))
	d.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	if requests != cfg.MaxAttempts {
		t.Fatalf("endpoint hit %d times, want exactly %d", requests, cfg.MaxAttempts)
	}
	mu.Unlock()

	// Backoff doubles per retry: 1x + 2x + 4x + 8x the base delay.
	if min := 15 * cfg.BaseDelay; elapsed < min {
		t.Errorf("delivery finished in %v, backoff should take at least %v", elapsed, min)
	}

	logs, _ := repo.ListLogs(context.Background(), sub.AccountID, sub.ID, 0, 0)
	if len(logs) != cfg.MaxAttempts {
		t.Fatalf("got %d log rows, want %d", len(logs), cfg.MaxAttempts)
	}
	for _, l := range logs {
		if l.Success {
			t.Errorf("attempt %d logged as success", l.Attempt)
		}
		if !l.StatusCode.Valid || l.StatusCode.Int32 != http.StatusInternalServerError {
			t.Errorf("attempt %d: status code = %+v, want 500", l.Attempt, l.StatusCode)
		}
	}

	repo.mu.Lock()
	if repo.touches != cfg.MaxAttempts {
		t.Errorf("last_triggered_at touched %d times, want %d", repo.touches, cfg.MaxAttempts)
	}
	repo.mu.Unlock()
}

// Deactivating mid-backoff stops the remaining retries.
func TestDeactivationCancelsRetries(t *testing.T) {
	repo := newMemWebhookRepo()

	var mu sync.Mutex
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := repo.seed(t, srv.URL, string(events.EmailSent))
	cfg := testConfig()
	cfg.BaseDelay = 50 * time.Millisecond
	d := NewDispatcher(repo, cfg)

	d.HandleEvent(events.New(events.EmailSent, sub.AccountID, events.MessagePayload{}))

	// Let the first attempt fail, then deactivate during the backoff.
	time.Sleep(10 * time.Millisecond)
	if _, err := repo.SetActive(context.Background(), sub.AccountID, sub.ID, false); err != nil {
		t.Fatal(err)
	}
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("endpoint hit %d times after deactivation, want 1", requests)
	}
}

func TestFanOutRespectsEventSelection(t *testing.T) {
	var mu sync.Mutex
	hits := make(map[string]int)
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}
	smsSrv := httptest.NewServer(handler("sms"))
	defer smsSrv.Close()
	paySrv := httptest.NewServer(handler("pay"))
	defer paySrv.Close()

	repo := newMemWebhookRepo()
	accountID := uuid.New()

	smsSub := repo.seed(t, smsSrv.URL, string(events.SMSSent))
	smsSub.AccountID = accountID
	repo.Create(context.Background(), smsSub)
	paySub := repo.seed(t, paySrv.URL, string(events.PaymentApplied))
	paySub.AccountID = accountID
	repo.Create(context.Background(), paySub)

	d := NewDispatcher(repo, testConfig())
	d.HandleEvent(events.New(events.SMSSent, accountID, events.MessagePayload{}))
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if hits["sms"] != 1 {
		t.Errorf("sms endpoint hit %d times, want 1", hits["sms"])
	}
	if hits["pay"] != 0 {
		t.Errorf("payment endpoint hit %d times, want 0", hits["pay"])
	}
}

func TestServiceRejectsUnknownEvents(t *testing.T) {
	svc := NewService(newMemWebhookRepo())
	_, err := svc.Create(context.Background(), uuid.New(), "https://example.com/hook", []string{"sms.sent", "bogus.event"})
	if err == nil {
		t.Fatal("expected an error for an unknown event name")
	}
}

func TestServiceMintsPrefixedSecret(t *testing.T) {
	svc := NewService(newMemWebhookRepo())
	sub, err := svc.Create(context.Background(), uuid.New(), "https://example.com/hook", []string{string(events.SMSSent)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(sub.Secret) < 10 || sub.Secret[:6] != "whsec_" {
		t.Errorf("secret = %q, want whsec_ prefix", sub.Secret)
	}
}
