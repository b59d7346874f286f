package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/travo/travo-api/internal/domain/account"
	"github.com/travo/travo-api/internal/domain/ledger"
	"github.com/travo/travo-api/internal/middleware"
	"github.com/travo/travo-api/internal/pkg/paystack"
	"github.com/travo/travo-api/internal/pkg/response"
	"github.com/travo/travo-api/internal/pkg/validator"
)

// Handler serves the wallet endpoints and the gateway webhook.
type Handler struct {
	svc           *Service
	ledger        ledger.Service
	accounts      account.Repository
	gatewaySecret string
}

// NewHandler creates payment handler. gatewaySecret signs incoming
// Paystack webhook bodies.
func NewHandler(svc *Service, ledgerSvc ledger.Service, accounts account.Repository, gatewaySecret string) *Handler {
	return &Handler{svc: svc, ledger: ledgerSvc, accounts: accounts, gatewaySecret: gatewaySecret}
}

// Topup handles POST /wallet/topup
func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req TopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	email := req.Email
	if email == "" {
		if acc, err := h.accounts.GetByID(r.Context(), accountID); err == nil {
			email = acc.Email
		}
	}
	if email == "" {
		response.BadRequest(w, "An email address is required to open checkout")
		return
	}

	checkout, err := h.svc.Initiate(r.Context(), accountID, email, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "Top-up amount must be positive")
		case errors.Is(err, ErrGatewayUnavailable):
			response.BadGateway(w, "Payment gateway is unavailable, try again shortly")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, checkout)
}

// Verify handles GET /wallet/paystack/verify?reference=
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		response.BadRequest(w, "reference is required")
		return
	}

	intent, err := h.svc.Reconcile(r.Context(), reference)
	if err != nil {
		switch {
		case errors.Is(err, ErrIntentNotFound):
			response.NotFound(w, "No payment found for this reference")
		case errors.Is(err, ErrGatewayUnavailable):
			response.BadGateway(w, "Payment gateway is unavailable, try again shortly")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, ToResponse(intent))
}

// Balance handles GET /wallet/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	summary, err := h.ledger.Summary(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, summary)
}

// Transactions handles GET /wallet/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := h.ledger.ListEntries(r.Context(), accountID, limit, (page-1)*limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, entries)
}

// GatewayWebhook handles POST /webhooks/paystack. Paystack signs the
// raw body with HMAC-SHA512; anything unsigned is dropped. A
// charge.success notification reconciles its reference the same way a
// browser callback does.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "Unreadable body")
		return
	}

	if !paystack.VerifySignature(body, r.Header.Get("x-paystack-signature"), h.gatewaySecret) {
		response.Unauthorized(w, "Invalid signature")
		return
	}

	var notification struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if notification.Event != "charge.success" || notification.Data.Reference == "" {
		// Acknowledge events we do not act on so the gateway stops retrying.
		response.OK(w, map[string]string{"status": "ignored"})
		return
	}

	if _, err := h.svc.Reconcile(r.Context(), notification.Data.Reference); err != nil {
		// Unknown references are acknowledged: retrying will not create
		// the intent. Transient failures get a retry from the gateway.
		if errors.Is(err, ErrIntentNotFound) {
			response.OK(w, map[string]string{"status": "ignored"})
			return
		}
		log.Error().Err(err).Str("reference", notification.Data.Reference).Msg("Webhook reconcile failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// WalletRoutes mounts authenticated wallet endpoints
func (h *Handler) WalletRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/topup", h.Topup)
	r.Get("/paystack/verify", h.Verify)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}
