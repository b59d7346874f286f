package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds Paystack API credentials
type Config struct {
	BaseURL   string
	SecretKey string
}

// Client calls the Paystack REST API
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Paystack API client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.paystack.co"
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// InitializeRequest describes a new checkout transaction
type InitializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // subunits (kobo/cents)
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitializeResponse carries the hosted checkout data
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResult is the gateway's verdict for a reference
type VerifyResult struct {
	Verified bool
	Amount   decimal.Decimal // main currency units
	Status   string
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a hosted checkout session for the given reference.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	env, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack initialize failed: %s", env.Message)
	}

	var data InitializeResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack initialize: decode data: %w", err)
	}
	return &data, nil
}

// Verify asks the gateway for the final state of a transaction reference.
// A non-success transaction status is not an error: Verified is false.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	env, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack verify failed: %s", env.Message)
	}

	var data struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"` // subunits
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack verify: decode data: %w", err)
	}

	return &VerifyResult{
		Verified: data.Status == "success",
		Amount:   decimal.NewFromInt(data.Amount).Div(decimal.NewFromInt(100)),
		Status:   data.Status,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request) (*apiEnvelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack request: %w", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("paystack response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paystack status %d: %s", resp.StatusCode, env.Message)
	}
	return &env, nil
}
