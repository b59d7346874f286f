package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/travo/travo-api/internal/config"
	"github.com/travo/travo-api/internal/domain/account"
	"github.com/travo/travo-api/internal/domain/apikey"
	"github.com/travo/travo-api/internal/domain/dashboard"
	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/domain/messaging"
	"github.com/travo/travo-api/internal/domain/payment"
	"github.com/travo/travo-api/internal/domain/realtime"
	"github.com/travo/travo-api/internal/domain/webhook"
	"github.com/travo/travo-api/internal/events"
	"github.com/travo/travo-api/internal/middleware"
	"github.com/travo/travo-api/internal/pkg/database"
	"github.com/travo/travo-api/internal/pkg/jwt"
	"github.com/travo/travo-api/internal/pkg/paystack"
	pkgresponse "github.com/travo/travo-api/internal/pkg/response"
	"github.com/travo/travo-api/internal/pkg/transport"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Travo API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	paystackClient := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
	})

	carrierClient := transport.NewClient(transport.Config{
		BaseURL: cfg.TransportURL,
		Token:   cfg.TransportToken,
	})

	// ---------- Event bus ----------
	bus := events.NewBus()

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	messagingRepo := messaging.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	webhookRepo := webhook.NewRepository(db)
	apikeyRepo := apikey.NewRepository(db)

	// ---------- Services ----------
	ledgerService := ledger.NewService(ledgerRepo)
	apikeyService := apikey.NewService(apikeyRepo)
	messagingService := messaging.NewService(messagingRepo, ledgerService, &carrierTransportAdapter{client: carrierClient}, bus)
	paymentService := payment.NewService(paymentRepo, ledgerService, paystackClient, bus, cfg.PaystackCallbackURL)
	webhookService := webhook.NewService(webhookRepo)
	dashboardService := dashboard.NewService(ledgerService, messagingService, redis, cfg.StatsCacheTTL)

	// ---------- Event subscribers ----------
	dispatcher := webhook.NewDispatcher(webhookRepo, webhook.DispatcherConfig{
		MaxAttempts: cfg.WebhookMaxAttempts,
		BaseDelay:   cfg.WebhookBaseDelay,
		Timeout:     cfg.WebhookTimeout,
	})
	bus.Subscribe(dispatcher.HandleEvent)

	hub := realtime.NewHub(redis)
	go hub.Run()
	bus.Subscribe(hub.HandleEvent)

	// Every event changes something the dashboard shows.
	bus.Subscribe(func(evt events.Event) {
		dashboardService.Invalidate(context.Background(), evt.AccountID)
	})

	// ---------- Handlers ----------
	messagingHandler := messaging.NewHandler(messagingService)
	paymentHandler := payment.NewHandler(paymentService, ledgerService, accountRepo, cfg.PaystackSecretKey)
	webhookHandler := webhook.NewHandler(webhookService)
	apikeyHandler := apikey.NewHandler(apikeyService)
	dashboardHandler := dashboard.NewHandler(dashboardService)
	realtimeHandler := realtime.NewHandler(hub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService, apikeyService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(realtimeHandler.WebSocket)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/sms", messagingHandler.SMSRoutes(authMiddleware))
		r.Mount("/email", messagingHandler.EmailRoutes(authMiddleware))
		r.Mount("/wallet", paymentHandler.WalletRoutes(authMiddleware))
		r.Mount("/webhooks", webhookHandler.Routes(authMiddleware))
		r.Mount("/api-keys", apikeyHandler.Routes(authMiddleware))
		r.Mount("/dashboard", dashboardHandler.Routes(authMiddleware))
	})

	// Gateway callbacks are signature-verified, not account-authenticated.
	r.Post("/webhooks/paystack", paymentHandler.GatewayWebhook)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Drain in-flight event handlers and webhook deliveries.
	bus.Wait()
	dispatcher.Wait()
	hub.Shutdown()

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}

// carrierTransportAdapter bridges the carrier gateway client to the
// metering engine's transport port.
type carrierTransportAdapter struct {
	client *transport.Client
}

func (a *carrierTransportAdapter) Send(ctx context.Context, unit messaging.SendUnit) (*messaging.Outcome, error) {
	result, err := a.client.Send(ctx, transport.Request{
		Channel:   string(unit.Channel),
		Recipient: unit.Recipient,
		SenderID:  unit.SenderID,
		Subject:   unit.Subject,
		Body:      unit.Body,
	})
	if err != nil {
		return nil, err
	}
	return &messaging.Outcome{
		Status:     messaging.Status(result.Status),
		ProviderID: result.ProviderID,
		Reason:     result.Reason,
	}, nil
}
