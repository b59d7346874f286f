package apikey

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/travo/travo-api/internal/middleware"
	"github.com/travo/travo-api/internal/pkg/response"
	"github.com/travo/travo-api/internal/pkg/validator"
)

// CreateRequest names a new API key
type CreateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// ToggleRequest suspends or resumes a key
type ToggleRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// KeyResponse is the API shape of an issued key. Key carries the
// plaintext only in the creation response.
type KeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key,omitempty"`
	Lookup     string     `json:"lookup"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toResponse(k *Key, plaintext string) KeyResponse {
	resp := KeyResponse{
		ID:        k.ID.String(),
		Name:      k.Name,
		Key:       plaintext,
		Lookup:    k.Lookup,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
	}
	if k.LastUsedAt.Valid {
		t := k.LastUsedAt.Time
		resp.LastUsedAt = &t
	}
	return resp
}

// Handler serves API key management endpoints
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /api-keys
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

	key, plaintext, err := h.svc.Issue(r.Context(), accountID, req.Name)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.Created(w, toResponse(key, plaintext))
}

// List handles GET /api-keys
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	keys, err := h.svc.List(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}

	out := make([]KeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, toResponse(&keys[i], ""))
	}
	response.OK(w, out)
}

// Toggle handles PATCH /api-keys/{id}/toggle
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid key id")
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

	key, err := h.svc.SetActive(r.Context(), accountID, id, *req.Active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "API key not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, toResponse(key, ""))
}

// Delete handles DELETE /api-keys/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid key id")
		return
	}

	if err := h.svc.Revoke(r.Context(), accountID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "API key not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.NoContent(w)
}

// Routes mounts key management endpoints
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Patch("/{id}/toggle", h.Toggle)
	r.Delete("/{id}", h.Delete)
	return r
}
