package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestVerify_SuccessConvertsSubunits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref_123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("unexpected auth header: %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"status":   "success",
				"amount":   1000,
				"currency": "USD",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, SecretKey: "sk_test"})

	result, err := client.Verify(context.Background(), "ref_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected verified result")
	}
	if !result.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected amount 10, got %s", result.Amount)
	}
}

func TestVerify_FailedTransactionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"status": "abandoned",
				"amount": 1000,
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, SecretKey: "sk_test"})

	result, err := client.Verify(context.Background(), "ref_abandoned")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verified {
		t.Fatal("expected unverified result for abandoned transaction")
	}
}

func TestInitialize_ReturnsCheckoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req InitializeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Amount != 1000 {
			t.Errorf("expected amount in subunits 1000, got %d", req.Amount)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         req.Reference,
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, SecretKey: "sk_test"})

	resp, err := client.Initialize(context.Background(), InitializeRequest{
		Email:     "ops@example.com",
		Amount:    1000,
		Reference: "ref_init",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AuthorizationURL == "" {
		t.Fatal("expected authorization url")
	}
	if resp.Reference != "ref_init" {
		t.Fatalf("expected reference echoed back, got %s", resp.Reference)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"charge.success"}`)
	sig := GenerateSignature(payload, "sk_secret")

	if !VerifySignature(payload, sig, "sk_secret") {
		t.Fatal("expected signature to verify")
	}
	if VerifySignature(payload, sig, "sk_other") {
		t.Fatal("expected signature mismatch with a different key")
	}
	if VerifySignature([]byte("tampered"), sig, "sk_secret") {
		t.Fatal("expected signature mismatch for tampered payload")
	}
	if VerifySignature(payload, "not-hex", "sk_secret") {
		t.Fatal("expected malformed signature to fail")
	}
}
