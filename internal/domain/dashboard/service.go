package dashboard

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/domain/messaging"
)

// Stats is the dashboard projection: wallet state plus message counts.
// Delivery rates are percentages over all messages of that channel.
type Stats struct {
	CreditsRemaining     int64   `json:"credits_remaining"`
	CreditsUsedThisMonth int64   `json:"credits_used_this_month"`
	TotalSMSSent         int64   `json:"total_sms_sent"`
	TotalEmailsSent      int64   `json:"total_emails_sent"`
	SMSDeliveryRate      float64 `json:"sms_delivery_rate"`
	EmailDeliveryRate    float64 `json:"email_delivery_rate"`
}

func deliveryRate(sent, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(sent)/float64(total)*10000) / 100
}

// Service assembles dashboard stats, read-through cached in Redis.
// The cache is best effort: with Redis down or unconfigured every
// request computes from Postgres.
type Service struct {
	ledger    ledger.Service
	messaging *messaging.Service
	cache     *redis.Client
	ttl       time.Duration
}

func NewService(ledgerSvc ledger.Service, messagingSvc *messaging.Service, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{ledger: ledgerSvc, messaging: messagingSvc, cache: cache, ttl: ttl}
}

func cacheKey(accountID uuid.UUID) string {
	return "dashboard:stats:" + accountID.String()
}

// Stats returns the account's dashboard numbers.
func (s *Service) Stats(ctx context.Context, accountID uuid.UUID) (*Stats, error) {
	if cached := s.fromCache(ctx, accountID); cached != nil {
		return cached, nil
	}

	summary, err := s.ledger.Summary(ctx, accountID)
	if err != nil {
		return nil, err
	}
	counts, err := s.messaging.Stats(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		CreditsRemaining:     summary.Balance,
		CreditsUsedThisMonth: summary.UsedThisMonth,
		TotalSMSSent:         counts.SMSSent,
		TotalEmailsSent:      counts.EmailSent,
		SMSDeliveryRate:      deliveryRate(counts.SMSSent, counts.SMSTotal),
		EmailDeliveryRate:    deliveryRate(counts.EmailSent, counts.EmailTotal),
	}

	s.toCache(ctx, accountID, stats)
	return stats, nil
}

func (s *Service) fromCache(ctx context.Context, accountID uuid.UUID) *Stats {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, cacheKey(accountID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Dashboard cache read failed")
		}
		return nil
	}

	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *Service) toCache(ctx context.Context, accountID uuid.UUID, stats *Stats) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(accountID), raw, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Dashboard cache write failed")
	}
}

// Invalidate drops the cached projection; called after writes that
// change what the dashboard shows.
func (s *Service) Invalidate(ctx context.Context, accountID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(accountID)).Err(); err != nil {
		log.Warn().Err(err).Msg("Dashboard cache invalidation failed")
	}
}
