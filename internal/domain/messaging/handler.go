package messaging

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/travo/travo-api/internal/middleware"
	"github.com/travo/travo-api/internal/pkg/response"
	"github.com/travo/travo-api/internal/pkg/validator"
)

// Handler handles messaging HTTP requests
type Handler struct {
	svc *Service
}

// NewHandler creates messaging handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SendSMS handles POST /sms/send
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req SendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.svc.Meter(r.Context(), accountID, []SendUnit{{
		Channel:   ChannelSMS,
		Recipient: req.Phone,
		SenderID:  req.SenderID,
		Body:      req.Message,
	}})
	if err != nil {
		response.InternalError(w)
		return
	}

	msg := result.Messages[0]
	if msg.Status == StatusFailed && msg.FailReason.String == ReasonInsufficientCredits {
		response.PaymentRequired(w, "Not enough credits to send this message")
		return
	}

	response.Created(w, ToResponse(msg))
}

// SendBulkSMS handles POST /sms/bulk
func (h *Handler) SendBulkSMS(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req BulkSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	units := make([]SendUnit, 0, len(req.Phones))
	for _, phone := range req.Phones {
		units = append(units, SendUnit{
			Channel:   ChannelSMS,
			Recipient: phone,
			SenderID:  req.SenderID,
			Body:      req.Message,
		})
	}

	result, err := h.svc.Meter(r.Context(), accountID, units)
	if err != nil && !errors.Is(err, ErrBatchAborted) {
		response.InternalError(w)
		return
	}

	// A storage abort still reports the units metered before it
	messages := make([]MessageResponse, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, ToResponse(m))
	}

	body := map[string]interface{}{
		"sent":     result.Sent,
		"failed":   result.Failed,
		"messages": messages,
	}
	if result.BatchID.Valid {
		body["batch_id"] = result.BatchID.UUID.String()
	}
	if err != nil {
		body["aborted"] = true
		response.JSON(w, http.StatusInternalServerError, body)
		return
	}

	response.Created(w, body)
}

// SendEmail handles POST /email/send
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.svc.Meter(r.Context(), accountID, []SendUnit{{
		Channel:   ChannelEmail,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Message,
	}})
	if err != nil {
		response.InternalError(w)
		return
	}

	msg := result.Messages[0]
	if msg.Status == StatusFailed && msg.FailReason.String == ReasonInsufficientCredits {
		response.PaymentRequired(w, "Not enough credits to send this email")
		return
	}

	response.Created(w, ToResponse(msg))
}

// ListSMS handles GET /sms
func (h *Handler) ListSMS(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ChannelSMS)
}

// ListEmail handles GET /email
func (h *Handler) ListEmail(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ChannelEmail)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, channel Channel) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, limit := pagination(r)
	messages, total, err := h.svc.List(r.Context(), accountID, channel, limit, (page-1)*limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, ToResponse(&messages[i]))
	}

	pages := (total + limit - 1) / limit
	response.WithMeta(w, out, response.Meta{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	})
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// SMSRoutes mounts SMS endpoints
func (h *Handler) SMSRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/send", h.SendSMS)
	r.Post("/bulk", h.SendBulkSMS)
	r.Get("/", h.ListSMS)
	return r
}

// EmailRoutes mounts email endpoints
func (h *Handler) EmailRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/send", h.SendEmail)
	r.Get("/", h.ListEmail)
	return r
}
