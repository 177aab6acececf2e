package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sheetsight/internal/job"
	"sheetsight/internal/server/middleware"
	"sheetsight/internal/store"
	"sheetsight/pkg/api"

	"github.com/google/uuid"
)

// CreateJob handles POST /jobs.
// It accepts a multipart upload of an Excel workbook, saves it to the
// upload directory, and starts a background analysis. The response
// returns immediately with the job id; progress is polled separately.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := middleware.OwnerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.httpError(w, "Upload too large or malformed", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.httpError(w, "A workbook file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xls" {
		h.httpError(w, "Only .xlsx and .xls files are supported", http.StatusBadRequest)
		return
	}

	savedPath, err := h.saveUpload(file, filename)
	if err != nil {
		h.log.Error("failed to save upload", "filename", filename, "error", err)
		h.httpError(w, "Failed to store uploaded file", http.StatusInternalServerError)
		return
	}

	jobID, err := h.supervisor.Create(ctx, job.CreateParams{
		OwnerID: owner,
		Input: store.InputRef{
			FilePath:     savedPath,
			Filename:     filename,
			Instructions: strings.TrimSpace(r.FormValue("instructions")),
		},
		Notify: store.NotificationPrefs{
			Email: strings.TrimSpace(r.FormValue("notify_email")),
		},
	})
	if err != nil {
		h.log.Error("failed to create job", "error", err)
		h.httpError(w, "Failed to start analysis", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.CreateJobResponse{
		JobID:     jobID,
		StatusURL: "/jobs/" + jobID,
	})
}

// saveUpload copies the workbook into the upload directory under a
// collision-free name.
func (h *Handlers) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(h.uploadDir, uuid.New().String()+"_"+filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// GetJob handles GET /jobs/{id}.
// The optional `since` query parameter returns only events after that
// sequence number, so pollers fetch each event exactly once.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	since := 0
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.httpError(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = n
	}

	view, err := h.supervisor.Status(ctx, jobID, since)
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
		// Do not reveal that the job exists.
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, viewToResponse(view))
}

// ListJobs handles GET /jobs.
// By default it returns the caller's active (non-terminal) job ids, which
// is what a reconnecting client needs. With ?all=1 it returns recent
// history from the durable store instead.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := middleware.OwnerFromContext(ctx)

	if r.URL.Query().Get("all") == "" {
		ids := h.supervisor.ListActive(owner)
		if ids == nil {
			ids = []string{}
		}
		h.respondJson(w, http.StatusOK, api.ListJobsResponse{JobIDs: ids})
		return
	}

	if owner == job.GuestOwner {
		// Guest jobs are never persisted, so there is no history to list.
		h.respondJson(w, http.StatusOK, api.ListJobsResponse{JobIDs: []string{}})
		return
	}

	snaps, err := h.history.ListRecent(ctx, owner, 50)
	if err != nil {
		h.log.Error("history lookup failed", "owner_id", owner, "error", err)
		h.httpError(w, "Internal error", http.StatusInternalServerError)
		return
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.JobID)
	}
	h.respondJson(w, http.StatusOK, api.ListJobsResponse{JobIDs: ids})
}

// RefineJob handles POST /jobs/{id}/refine.
// It starts a new job that reworks the prior job's dashboard with fresh
// instructions. The prior job must be finished.
func (h *Handlers) RefineJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	priorID := r.PathValue("id")
	owner := middleware.OwnerFromContext(ctx)

	var req api.RefineJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	jobID, err := h.refiner.CreateRefinement(ctx, priorID, req.Instructions, owner, store.NotificationPrefs{})
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			h.httpError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, job.ErrInvalidState):
			h.httpError(w, err.Error(), http.StatusConflict)
		default:
			h.log.Error("refinement failed", "prior_job_id", priorID, "error", err)
			h.httpError(w, "Failed to start refinement", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusOK, api.RefineJobResponse{
		JobID:     jobID,
		PriorID:   priorID,
		StatusURL: "/jobs/" + jobID,
	})
}

// CancelJob handles POST /jobs/{id}/cancel.
// Cancellation is cooperative: the runner stops between events, so the
// job may still take a moment to reach its terminal status.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	owner := middleware.OwnerFromContext(r.Context())

	view, err := h.supervisor.Status(r.Context(), jobID, 0)
	if err != nil || (view.OwnerID != owner && view.OwnerID != job.GuestOwner) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	if err := h.supervisor.Cancel(jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			h.httpError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, job.ErrInvalidState):
			h.httpError(w, err.Error(), http.StatusConflict)
		default:
			h.httpError(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}
	h.respondJson(w, http.StatusAccepted, nil)
}
