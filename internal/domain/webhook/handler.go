package webhook

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

// Handler serves subscription management endpoints
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /webhooks
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	sub, err := h.svc.Create(r.Context(), accountID, req.URL, req.Events)
	if err != nil {
		if errors.Is(err, ErrInvalidEvents) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}

	// The secret is shown here and never again.
	response.Created(w, ToResponse(sub, true))
}

// List handles GET /webhooks
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	subs, err := h.svc.List(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, ToResponse(&subs[i], false))
	}
	response.OK(w, out)
}

// Get handles GET /webhooks/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.Get(r.Context(), accountID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, ToResponse(sub, false))
}

// Update handles PUT /webhooks/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	sub, err := h.svc.Update(r.Context(), accountID, id, req.URL, req.Events)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, ToResponse(sub, false))
}

// Toggle handles PATCH /webhooks/{id}/toggle
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	sub, err := h.svc.SetActive(r.Context(), accountID, id, *req.Active)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, ToResponse(sub, false))
}

// Delete handles DELETE /webhooks/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), accountID, id); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// Logs handles GET /webhooks/{id}/deliveries
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	accountID, id, ok := h.ids(w, r)
	if !ok {
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

	logs, err := h.svc.Logs(r.Context(), accountID, id, limit, (page-1)*limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]DeliveryLogResponse, 0, len(logs))
	for i := range logs {
		out = append(out, LogToResponse(&logs[i]))
	}
	response.OK(w, out)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (accountID, id uuid.UUID, ok bool) {
	accountID = middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid webhook id")
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "Webhook not found")
	case errors.Is(err, ErrInvalidEvents):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w)
	}
}

// Routes mounts subscription management endpoints
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}/toggle", h.Toggle)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/deliveries", h.Logs)
	return r
}
