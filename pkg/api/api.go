// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the server.
package api

import (
	"encoding/json"
	"time"
)

// CreateJobResponse is the response body after uploading a workbook for analysis.
type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// ProgressEvent is one unit of the activity log in API responses.
// Payload is kind-specific and passed through opaquely.
type ProgressEvent struct {
	Sequence  int             `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// JobStatusResponse is the response body for job status polls.
// Events contains the suffix after the `since` query parameter, or the
// full history when `since` is absent. EventCount is always the total.
type JobStatusResponse struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Message      string          `json:"message,omitempty"`
	Filename     string          `json:"filename,omitempty"`
	Events       []ProgressEvent `json:"events"`
	EventCount   int             `json:"event_count"`
	DashboardURL string          `json:"dashboard_url,omitempty"`
	Ready        bool            `json:"ready"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinalizedAt  *time.Time      `json:"finalized_at,omitempty"`
}

// ListJobsResponse is the response body for listing the caller's jobs.
type ListJobsResponse struct {
	JobIDs []string `json:"job_ids"`
}

// RefineJobRequest is the request body for refining a completed analysis.
type RefineJobRequest struct {
	Instructions string `json:"instructions"`
}

// RefineJobResponse is the response body after creating a refinement job.
type RefineJobResponse struct {
	JobID     string `json:"job_id"`
	PriorID   string `json:"prior_job_id"`
	StatusURL string `json:"status_url"`
}

// ChatRequest is the request body for one chat turn about an analyzed workbook.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatMessage is one turn of a chat conversation in API responses.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatResponse is the response body after a chat turn.
type ChatResponse struct {
	JobID     string `json:"job_id"`
	Reply     string `json:"reply"`
	Remaining int    `json:"remaining_messages"`
}

// ChatHistoryResponse is the response body for fetching a chat session's history.
type ChatHistoryResponse struct {
	JobID     string        `json:"job_id"`
	Messages  []ChatMessage `json:"messages"`
	Remaining int           `json:"remaining_messages"`
}

// CreateUserRequest is the request body for registering a new user.
type CreateUserRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// CreateUserResponse is the response body after registering a user.
// The API key is only returned once, at creation time.
type CreateUserResponse struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
