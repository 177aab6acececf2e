// Package handlers contains HTTP handlers for the analysis API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sheetsight/internal/job"
	"sheetsight/internal/store"
	"sheetsight/pkg/api"

	"github.com/gorilla/websocket"
)

// Pinger exposes the durable store's health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	supervisor *job.Supervisor
	refiner    *job.Refiner
	chat       *job.ChatManager
	users      store.UserStore
	history    store.SnapshotStore
	db         Pinger
	log        *slog.Logger

	uploadDir string
	maxUpload int64
	upgrader  websocket.Upgrader
}

// Config carries the upload limits for the handlers.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// New creates a Handlers instance with the given dependencies.
func New(supervisor *job.Supervisor, refiner *job.Refiner, chat *job.ChatManager, users store.UserStore, history store.SnapshotStore, db Pinger, log *slog.Logger, cfg Config) *Handlers {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	return &Handlers{
		supervisor: supervisor,
		refiner:    refiner,
		chat:       chat,
		users:      users,
		history:    history,
		db:         db,
		log:        log,
		uploadDir:  cfg.UploadDir,
		maxUpload:  cfg.MaxUploadBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// viewToResponse converts an internal job view into the API shape.
func viewToResponse(v job.View) api.JobStatusResponse {
	events := make([]api.ProgressEvent, 0, len(v.Events))
	for _, ev := range v.Events {
		events = append(events, api.ProgressEvent{
			Sequence:  ev.Sequence,
			Timestamp: ev.Timestamp,
			Kind:      string(ev.Kind),
			Payload:   ev.Payload,
		})
	}

	resp := api.JobStatusResponse{
		JobID:       v.JobID,
		Status:      string(v.Status),
		Message:     v.Message,
		Filename:    v.Filename,
		Events:      events,
		EventCount:  v.EventCount,
		CreatedAt:   v.CreatedAt,
		FinalizedAt: v.FinalizedAt,
	}
	if v.ResultRef != "" {
		resp.DashboardURL = "/dashboards/" + v.JobID
		resp.Ready = true
	}
	if v.Status == store.StatusError {
		resp.Error = v.Message
	}
	return resp
}
