package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"sheetsight/internal/job"
	"sheetsight/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes one analysis run against the engine and forwards
// every native event as exactly one canonical progress event through
// the supervisor's sink.
type Runner struct {
	engine    Engine
	outputDir string
	log       *slog.Logger
}

// NewRunner wires a runner. Each run gets its own directory under
// outputDir, named after the job id.
func NewRunner(engine Engine, outputDir string, log *slog.Logger) *Runner {
	return &Runner{engine: engine, outputDir: outputDir, log: log}
}

const (
	thoughtPreviewLen = 200
	resultPreviewLen  = 150
)

// Run implements job.Runner. It blocks until the engine stream ends,
// which routinely takes minutes. The only suspension point is waiting
// on the next stream event; cancellation is observed there.
func (r *Runner) Run(ctx context.Context, rec *job.Record, sink job.Sink) (job.Result, error) {
	tracer := otel.Tracer("sheetsight/agent")
	ctx, span := tracer.Start(ctx, "analyze",
		trace.WithAttributes(
			attribute.String("job.id", rec.ID()),
			attribute.String("job.mode", string(rec.Mode())),
			attribute.String("job.file", rec.Input().Filename),
		))
	defer span.End()

	workDir := filepath.Join(r.outputDir, rec.ID())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return job.Result{}, fmt.Errorf("create work dir: %w", err)
	}

	inst := BuildInstruction(rec, workDir)

	stream, err := r.engine.Open(ctx, inst)
	if err != nil {
		span.RecordError(err)
		return job.Result{}, fmt.Errorf("open engine stream: %w", err)
	}
	defer stream.Close()

	if err := sink.AppendEvent(rec.ID(), store.KindLifecycleStart, map[string]string{
		"file": rec.Input().Filename,
		"mode": string(rec.Mode()),
	}); err != nil {
		r.log.Warn("failed to append lifecycle-start", "job_id", rec.ID(), "error", err)
	}

	var artifact string
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			return job.Result{}, err
		}
		if err := r.forward(rec.ID(), sink, ev, &artifact); err != nil {
			span.RecordError(err)
			return job.Result{}, err
		}
	}

	if artifact == "" {
		// The engine may have written the dashboard without reporting
		// a result event.
		candidate := filepath.Join(workDir, ArtifactName)
		if _, err := os.Stat(candidate); err == nil {
			artifact = candidate
		}
	}

	if artifact == "" {
		span.SetAttributes(attribute.String("outcome", string(store.StatusPartial)))
		return job.Result{Status: store.StatusPartial}, nil
	}
	span.SetAttributes(attribute.String("outcome", string(store.StatusCompleted)))
	return job.Result{Status: store.StatusCompleted, ResultRef: artifact}, nil
}

// forward translates one native event into one canonical event.
// Unrecognized event types are skipped, matching the tolerance the
// stream contract requires of consumers.
func (r *Runner) forward(jobID string, sink job.Sink, ev Event, artifact *string) error {
	switch ev.Type {
	case EventThinking:
		return sink.AppendEvent(jobID, store.KindThought, map[string]string{
			"text": preview(ev.Thinking, thoughtPreviewLen),
		})
	case EventToolUse:
		sink.SetProgress(jobID, "Running "+ev.ToolName+"...")
		return sink.AppendEvent(jobID, store.KindToolInvocation, map[string]any{
			"tool":  ev.ToolName,
			"input": ev.ToolInput,
		})
	case EventToolResult:
		return sink.AppendEvent(jobID, store.KindToolResult, map[string]string{
			"tool_use_id": ev.ToolUseID,
			"output":      preview(ev.ToolOutput, resultPreviewLen),
		})
	case EventText:
		return sink.AppendEvent(jobID, store.KindText, map[string]string{
			"text": preview(ev.Text, thoughtPreviewLen),
		})
	case EventResult:
		*artifact = ev.ArtifactPath
		return sink.AppendEvent(jobID, store.KindToolResult, map[string]string{
			"artifact_path": ev.ArtifactPath,
		})
	case EventError:
		return &EngineError{Message: ev.Message}
	default:
		r.log.Debug("skipping unrecognized engine event", "job_id", jobID, "type", ev.Type)
		return nil
	}
}

// preview truncates s to at most n runes, appending an ellipsis when
// anything was cut.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
