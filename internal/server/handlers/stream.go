package handlers

import (
	"errors"
	"net/http"
	"time"

	"sheetsight/internal/job"
	"sheetsight/internal/server/middleware"
	"sheetsight/pkg/api"
)

// streamPollInterval bounds how stale a pushed frame can be. The event
// log is poll-based underneath; the socket just saves the client from
// re-issuing HTTP requests.
const streamPollInterval = 500 * time.Millisecond

// StreamJob handles GET /jobs/{id}/stream.
// It upgrades to a websocket and pushes status frames until the job
// reaches a terminal state, then sends one final frame and closes.
func (h *Handlers) StreamJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	// Validate before upgrading so error responses stay plain HTTP.
	view, err := h.supervisor.Status(ctx, jobID, 0)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.log.Error("status lookup failed", "job_id", jobID, "error", err)
		h.httpError(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if view.OwnerID != owner && view.OwnerID != job.GuestOwner {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// The first frame carries the full history; subsequent frames only
	// the suffix after the cursor.
	if err := conn.WriteJSON(viewToResponse(view)); err != nil {
		return
	}
	cursor := view.EventCount
	if view.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err := h.supervisor.Status(ctx, jobID, cursor)
		if err != nil {
			conn.WriteJSON(api.ErrorResponse{Error: "Job disappeared", Code: "410"})
			return
		}
		if len(view.Events) == 0 && !view.Status.Terminal() {
			continue
		}

		if err := conn.WriteJSON(viewToResponse(view)); err != nil {
			return
		}
		cursor = view.EventCount
		if view.Status.Terminal() {
			return
		}
	}
}
