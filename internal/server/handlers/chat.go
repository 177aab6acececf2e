package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"sheetsight/internal/job"
	"sheetsight/internal/server/middleware"
	"sheetsight/pkg/api"
)

// ChatSend handles POST /jobs/{id}/chat.
// It runs one conversational turn about a finished analysis and returns
// the assistant's reply. Sessions are capped; once the budget is spent
// further messages are rejected with 409.
func (h *Handlers) ChatSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reply, remaining, err := h.chat.Send(ctx, jobID, owner, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			h.httpError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, job.ErrChatLimit):
			h.httpError(w, "Message limit reached for this session", http.StatusConflict)
		case errors.Is(err, job.ErrInvalidState):
			h.httpError(w, err.Error(), http.StatusConflict)
		default:
			h.log.Error("chat turn failed", "job_id", jobID, "error", err)
			h.httpError(w, "Failed to answer the question", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusOK, api.ChatResponse{
		JobID:     jobID,
		Reply:     reply,
		Remaining: remaining,
	})
}

// ChatHistory handles GET /jobs/{id}/chat.
// It returns the conversation so far; a finished job that has not been
// chatted with yet reports an empty history.
func (h *Handlers) ChatHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	msgs, remaining, err := h.chat.History(ctx, jobID, owner)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			h.httpError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, job.ErrInvalidState):
			h.httpError(w, err.Error(), http.StatusConflict)
		default:
			h.log.Error("chat history lookup failed", "job_id", jobID, "error", err)
			h.httpError(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	out := make([]api.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, api.ChatMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	h.respondJson(w, http.StatusOK, api.ChatHistoryResponse{
		JobID:     jobID,
		Messages:  out,
		Remaining: remaining,
	})
}
