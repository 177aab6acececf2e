// Package store contains the persistence layer for sheetsight.
package store

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
// Transitions only move forward: pending -> running -> {completed | partial | error}.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusError     JobStatus = "error"
)

// Terminal reports whether no further transitions can occur from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusError
}

// JobMode distinguishes a fresh analysis from a refinement of a prior one.
type JobMode string

const (
	ModeAnalysis   JobMode = "analysis"
	ModeRefinement JobMode = "refinement"
)

// EventKind is the canonical, engine-independent event vocabulary.
// Translation from engine-native events happens only in the agent runner.
type EventKind string

const (
	KindLifecycleStart EventKind = "lifecycle-start"
	KindThought        EventKind = "agent-thought"
	KindToolInvocation EventKind = "tool-invocation"
	KindToolResult     EventKind = "tool-result"
	KindText           EventKind = "text-output"
	KindError          EventKind = "error"
	KindLifecycleEnd   EventKind = "lifecycle-end"
)

// ProgressEvent is one immutable unit of a job's activity log.
// Sequence numbers are assigned on append and are strictly increasing
// with no gaps within a job.
type ProgressEvent struct {
	Sequence  int             `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// InputRef points at the uploaded workbook and the caller's steering text.
// The upload layer guarantees FilePath exists for the lifetime of the job.
type InputRef struct {
	FilePath     string `json:"file_path"`
	Filename     string `json:"filename"`
	Instructions string `json:"instructions,omitempty"`
}

// RefinementContext carries a prior job's output forward into a follow-up job.
type RefinementContext struct {
	PriorJobID        string `json:"prior_job_id"`
	PriorResult       string `json:"prior_result"`
	PriorInstructions string `json:"prior_instructions,omitempty"`
}

// NotificationPrefs controls completion-notification dispatch.
// An empty Email disables notifications for the job.
type NotificationPrefs struct {
	Email string `json:"email,omitempty"`
}

// JobSnapshot is the durable serialized copy of a job record.
// It must round-trip exactly through SaveSnapshot/LoadSnapshot,
// including the full event list.
type JobSnapshot struct {
	JobID       string             `json:"job_id"`
	OwnerID     string             `json:"owner_id"`
	Mode        JobMode            `json:"mode"`
	Status      JobStatus          `json:"status"`
	Message     string             `json:"progress_message,omitempty"`
	Input       InputRef           `json:"input_ref"`
	Refinement  *RefinementContext `json:"refinement,omitempty"`
	ResultRef   string             `json:"result_ref,omitempty"`
	Notify      NotificationPrefs  `json:"notification_prefs"`
	Events      []ProgressEvent    `json:"events"`
	CreatedAt   time.Time          `json:"created_at"`
	FinalizedAt *time.Time         `json:"finalized_at,omitempty"`
}

// User represents a registered account. Jobs created without a valid
// API key belong to the guest owner and are never persisted.
type User struct {
	ID        string
	Username  string
	FullName  string
	Email     string
	CreatedAt time.Time
	LastLogin *time.Time
}
