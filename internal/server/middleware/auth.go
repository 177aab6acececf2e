// Package middleware contains HTTP middleware for the web layer.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"sheetsight/internal/auth"
	"sheetsight/internal/job"
	"sheetsight/internal/store"
	"sheetsight/pkg/api"
)

// ownerKey is the context key for the authenticated owner id.
type ownerKey struct{}

// APIKeyAuth resolves the caller to an owner id. Requests without an
// Authorization header proceed as the guest owner (anonymous analyses
// are allowed; they are just never persisted). A key that is present
// but unknown is rejected.
func APIKeyAuth(users store.UserStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				ctx := context.WithValue(r.Context(), ownerKey{}, job.GuestOwner)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			user, err := users.GetUserByAPIKeyHash(r.Context(), auth.HashKey(key))
			if errors.Is(err, store.ErrNotFound) {
				unauthorized(w)
				return
			}
			if err != nil {
				log.Error("api key lookup failed", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Internal error", Code: "500"})
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey{}, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the owner id set by APIKeyAuth, defaulting
// to the guest owner.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok && v != "" {
		return v
	}
	return job.GuestOwner
}

// NewContextWithOwner injects an owner id, for handler tests.
func NewContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Invalid API key", Code: "401"})
}
