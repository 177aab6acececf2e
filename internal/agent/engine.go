// Package agent drives the external analysis engine and translates its
// native event stream into the canonical progress-event vocabulary.
// This package is the only place engine-native event shapes appear;
// everything else depends on the canonical schema alone.
package agent

import (
	"context"
	"encoding/json"
)

// Event is the engine-native event shape received from the analysis
// stream. Which fields are set depends on Type.
type Event struct {
	Type         string          `json:"type"`
	Thinking     string          `json:"thinking,omitempty"`
	Text         string          `json:"text,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	ToolOutput   string          `json:"tool_output,omitempty"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Engine-native event types.
const (
	EventThinking   = "thinking"
	EventToolUse    = "tool_use"
	EventToolResult = "tool_result"
	EventText       = "text"
	EventResult     = "result"
	EventError      = "error"
)

// Stream is one open analysis session. Next blocks until the engine
// produces the next event and returns io.EOF when the stream ends
// cleanly.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Engine opens streaming analysis sessions. The contract: given an
// instruction payload it returns an ordered event stream that
// eventually ends, and may fail mid-stream on fatal conditions.
type Engine interface {
	Open(ctx context.Context, inst Instruction) (Stream, error)
}

// EngineError is a fatal condition reported by the engine itself, as
// opposed to transport or process failures.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return "engine error: " + e.Message
}
