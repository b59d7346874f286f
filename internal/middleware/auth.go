package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/travo/travo-api/internal/pkg/jwt"
	"github.com/travo/travo-api/internal/pkg/response"
)

type contextKey string

const (
	AccountIDKey contextKey = "account_id"
	PlanKey      contextKey = "plan"
)

// APIKeyResolver maps a raw API key to the owning account.
type APIKeyResolver interface {
	ResolveKey(ctx context.Context, rawKey string) (uuid.UUID, error)
}

// Auth returns middleware that resolves the caller's account from either
// a bearer access token (dashboard) or an X-API-Key header (programmatic).
// The identity is trusted as-is; the core performs no authentication of
// its own beyond verifying the token/key.
func Auth(jwtService *jwt.Service, keys APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && keys != nil {
				accountID, err := keys.ResolveKey(r.Context(), apiKey)
				if err != nil {
					response.Unauthorized(w, "Invalid API key")
					return
				}
				ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			// API keys may also ride the bearer slot (docs page style)
			if keys != nil && strings.HasPrefix(parts[1], "travo_") {
				accountID, err := keys.ResolveKey(r.Context(), parts[1])
				if err != nil {
					response.Unauthorized(w, "Invalid API key")
					return
				}
				ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, claims.AccountID)
			ctx = context.WithValue(ctx, PlanKey, claims.Plan)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID extracts the authenticated account id from context
func GetAccountID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(AccountIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetPlan extracts the account plan from context
func GetPlan(ctx context.Context) string {
	if plan, ok := ctx.Value(PlanKey).(string); ok {
		return plan
	}
	return ""
}
