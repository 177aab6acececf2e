package handlers

import (
	"errors"
	"net/http"
	"os"

	"sheetsight/internal/job"
	"sheetsight/internal/server/middleware"
)

// GetDashboard handles GET /dashboards/{id}.
// It serves the generated HTML artifact for a finished job.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	view, err := h.supervisor.Status(ctx, jobID, 0)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			h.httpError(w, "Dashboard not found", http.StatusNotFound)
			return
		}
		h.log.Error("dashboard lookup failed", "job_id", jobID, "error", err)
		h.httpError(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if view.OwnerID != owner && view.OwnerID != job.GuestOwner {
		h.httpError(w, "Dashboard not found", http.StatusNotFound)
		return
	}
	if view.ResultRef == "" {
		h.httpError(w, "Dashboard is not ready yet", http.StatusNotFound)
		return
	}

	if _, err := os.Stat(view.ResultRef); err != nil {
		h.log.Error("dashboard artifact missing on disk", "job_id", jobID, "path", view.ResultRef)
		h.httpError(w, "Dashboard artifact is missing", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, view.ResultRef)
}
