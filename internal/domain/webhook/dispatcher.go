package webhook

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/travo/travo-api/internal/events"
	"github.com/travo/travo-api/internal/pkg/metrics"
)

// DispatcherConfig tunes retry behavior. Delays between attempts are
// BaseDelay doubled per retry: 1s, 2s, 4s, 8s, 16s with the defaults.
type DispatcherConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Dispatcher delivers domain events to matching subscriptions. It is
// wired to the event bus at startup; each matching subscription gets
// its own delivery goroutine so one slow endpoint cannot delay others.
type Dispatcher struct {
	repo   Repository
	client *http.Client
	cfg    DispatcherConfig
	wg     sync.WaitGroup
}

func NewDispatcher(repo Repository, cfg DispatcherConfig) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{
		repo:   repo,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// HandleEvent is the bus handler. It fans the event out to the
// account's active subscriptions that selected its name.
func (d *Dispatcher) HandleEvent(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	subs, err := d.repo.ListActiveByEvent(ctx, evt.AccountID, string(evt.Name))
	if err != nil {
		log.Error().Err(err).Str("event", string(evt.Name)).Msg("Webhook fan-out lookup failed")
		return
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(sub Subscription) {
			defer d.wg.Done()
			d.deliver(sub, evt)
		}(sub)
	}
}

// Wait blocks until all in-flight deliveries (including retries) finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver posts the event to one subscription, retrying on failure.
// Every attempt stamps last_triggered_at and writes a log row. Before
// each retry the subscription's active flag is re-read: deactivation
// cancels the remaining attempts but never an attempt already running.
func (d *Dispatcher) deliver(sub Subscription, evt events.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", string(evt.Name)).Msg("Webhook payload encode failed")
		return
	}
	signature := Sign(sub.Secret, body)

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.cfg.BaseDelay << (attempt - 2))

			active, err := d.repo.IsActive(context.Background(), sub.ID)
			if err != nil {
				log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("Webhook active check failed")
			}
			if !active {
				metrics.WebhookDeliveries.WithLabelValues("cancelled").Inc()
				log.Info().
					Str("subscription_id", sub.ID.String()).
					Str("event_id", evt.ID.String()).
					Int("attempt", attempt).
					Msg("Webhook retries cancelled, subscription inactive")
				return
			}
		}

		if d.attempt(sub, evt, body, signature, attempt) {
			metrics.WebhookDeliveries.WithLabelValues("success").Inc()
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
	}

	metrics.WebhookDeliveries.WithLabelValues("abandoned").Inc()
	log.Warn().
		Str("subscription_id", sub.ID.String()).
		Str("event_id", evt.ID.String()).
		Int("attempts", d.cfg.MaxAttempts).
		Msg("Webhook delivery abandoned")
}

func (d *Dispatcher) attempt(sub Subscription, evt events.Event, body []byte, signature string, attempt int) bool {
	ctx := context.Background()
	if err := d.repo.TouchLastTriggered(ctx, sub.ID); err != nil {
		log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("Webhook touch failed")
	}

	entry := &DeliveryLog{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		EventID:        evt.ID,
		EventName:      string(evt.Name),
		Attempt:        attempt,
	}

	start := time.Now()
	code, err := d.post(ctx, sub, body, signature, evt)
	elapsed := time.Since(start)
	metrics.WebhookDeliveryDuration.Observe(elapsed.Seconds())

	entry.DurationMS = elapsed.Milliseconds()
	if code > 0 {
		entry.StatusCode = sql.NullInt32{Int32: int32(code), Valid: true}
	}
	switch {
	case err != nil:
		entry.Error = sql.NullString{String: err.Error(), Valid: true}
	case code < 200 || code >= 300:
		entry.Error = sql.NullString{String: fmt.Sprintf("endpoint answered %d", code), Valid: true}
	default:
		entry.Success = true
	}

	if logErr := d.repo.InsertLog(ctx, entry); logErr != nil {
		log.Error().Err(logErr).Str("subscription_id", sub.ID.String()).Msg("Webhook log write failed")
	}

	if !entry.Success {
		log.Warn().
			Str("subscription_id", sub.ID.String()).
			Str("event", string(evt.Name)).
			Int("attempt", attempt).
			Int("status", code).
			AnErr("error", err).
			Msg("Webhook delivery attempt failed")
	}

	return entry.Success
}

func (d *Dispatcher) post(ctx context.Context, sub Subscription, body []byte, signature string, evt events.Event) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Travo-Webhooks/1.0")
	req.Header.Set("X-Travo-Event", string(evt.Name))
	req.Header.Set("X-Travo-Delivery", evt.ID.String())
	req.Header.Set("X-Travo-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
