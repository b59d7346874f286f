package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config holds the carrier gateway settings. An empty BaseURL puts the
// client in accept mode: every send is acknowledged locally, which keeps
// development environments working without a carrier account.
type Config struct {
	BaseURL string
	Token   string
}

// Client talks to the SMS/email carrier gateway.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a carrier gateway client
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Request is one message handed to the carrier
type Request struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	SenderID  string `json:"sender_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
}

// Result is the carrier's acceptance verdict
type Result struct {
	Status     string `json:"status"` // sent | failed
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason,omitempty"`
}

// Send hands one message to the carrier and returns its outcome.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	if c.config.BaseURL == "" {
		return &Result{Status: "sent", ProviderID: "local_" + uuid.NewString()}, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("carrier request: %w", err)
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("carrier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("channel", req.Channel).
			Msg("Carrier rejected message")
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("carrier status %d", resp.StatusCode)
		}
		result.Status = "failed"
	}

	return &result, nil
}
