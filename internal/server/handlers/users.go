package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sheetsight/internal/auth"
	"sheetsight/internal/store"
	"sheetsight/pkg/api"

	"github.com/google/uuid"
)

// CreateUser handles POST /users.
// It generates a new API key, hashes it for storage, and returns the raw
// key ONCE.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		h.httpError(w, "Username is required", http.StatusBadRequest)
		return
	}

	// Generate a secure random API key (32 bytes)
	rawKeyBytes := make([]byte, 32)
	if _, err := rand.Read(rawKeyBytes); err != nil {
		h.httpError(w, "Entropy failure", http.StatusInternalServerError)
		return
	}
	apiKey := "ss_" + hex.EncodeToString(rawKeyBytes)

	user := &store.User{
		ID:        uuid.New().String(),
		Username:  req.Username,
		FullName:  req.FullName,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.users.CreateUser(ctx, user, auth.HashKey(apiKey)); err != nil {
		h.log.Error("failed to create user", "username", req.Username, "error", err)
		h.httpError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	// Return the raw key (this is the only time the user sees it).
	h.respondJson(w, http.StatusCreated, api.CreateUserResponse{
		ID:       user.ID,
		Username: user.Username,
		APIKey:   apiKey,
	})
}
