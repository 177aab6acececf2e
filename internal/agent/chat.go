package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sheetsight/internal/job"
	"sheetsight/internal/store"
)

const chatSystemPrompt = `You are a helpful data analyst. Answer questions about the provided
Excel workbook clearly and concisely, referencing specific data points
where relevant. If a prior dashboard analysis is provided, use its
findings as context. Respond in the same language the user writes in.`

// ChatResponder answers chat turns by opening a short engine session
// per question. Unlike an analysis run it produces no artifact; the
// reply is the concatenated text output of the stream.
type ChatResponder struct {
	engine  Engine
	workDir string
	log     *slog.Logger
}

// NewChatResponder wires a responder. Chat sessions share a single
// scratch directory since they write nothing the server keeps.
func NewChatResponder(engine Engine, outputDir string, log *slog.Logger) *ChatResponder {
	return &ChatResponder{engine: engine, workDir: filepath.Join(outputDir, "chat"), log: log}
}

// Respond implements job.Responder.
func (c *ChatResponder) Respond(ctx context.Context, input store.InputRef, resultRef string, history []job.ChatMessage, message string) (string, error) {
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create chat work dir: %w", err)
	}

	inst := buildChatInstruction(input, resultRef, history, message, c.workDir)

	stream, err := c.engine.Open(ctx, inst)
	if err != nil {
		return "", fmt.Errorf("open engine stream: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch ev.Type {
		case EventText:
			reply.WriteString(ev.Text)
		case EventError:
			return "", &EngineError{Message: ev.Message}
		default:
			// Thinking and tool events are not part of the answer.
		}
	}

	answer := strings.TrimSpace(reply.String())
	if answer == "" {
		return "", fmt.Errorf("engine produced no answer")
	}
	return answer, nil
}

// buildChatInstruction composes the engine payload for one chat turn:
// the workbook, the prior dashboard if any, the conversation so far,
// and the new question.
func buildChatInstruction(input store.InputRef, resultRef string, history []job.ChatMessage, message, workDir string) Instruction {
	var b strings.Builder
	fmt.Fprintf(&b, "Source workbook: %s\n\n", input.FilePath)

	if resultRef != "" {
		fmt.Fprintf(&b, "A dashboard analysis of this workbook exists at: %s\n", resultRef)
		b.WriteString("Treat its findings as established context.\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User question: %s\n\nAnswer the question. Do not build a dashboard.", message)

	return Instruction{
		SystemPrompt: chatSystemPrompt,
		Prompt:       b.String(),
		SourceFile:   input.FilePath,
		WorkDir:      workDir,
	}
}

var _ job.Responder = (*ChatResponder)(nil)
