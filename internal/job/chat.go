package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sheetsight/internal/store"
)

// ErrChatLimit means the session has used up its message budget.
var ErrChatLimit = errors.New("chat message limit reached")

// maxChatMessages caps the user messages per session. Every turn
// re-sends the workbook context to the model, so an unbounded session
// would be an unbounded cost.
const maxChatMessages = 15

// ChatMessage is one turn of a chat session.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Responder answers one chat turn about an analyzed workbook. The
// implementation lives in internal/agent.
type Responder interface {
	Respond(ctx context.Context, input store.InputRef, resultRef string, history []ChatMessage, message string) (string, error)
}

// chatSession holds one job's conversation. Sessions are memory-only:
// they die with the process, like the original per-run conversations.
type chatSession struct {
	mu        sync.Mutex
	input     store.InputRef
	resultRef string
	messages  []ChatMessage
	userCount int
}

// ChatManager runs follow-up conversations about finished analyses.
// A session is keyed by the job id and lazily created on the first
// message; the engine gets the workbook, the dashboard, and the
// conversation history on every turn.
type ChatManager struct {
	supervisor *Supervisor
	responder  Responder
	log        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*chatSession
}

// NewChatManager wires the chat coordinator.
func NewChatManager(supervisor *Supervisor, responder Responder, log *slog.Logger) *ChatManager {
	return &ChatManager{
		supervisor: supervisor,
		responder:  responder,
		log:        log,
		sessions:   make(map[string]*chatSession),
	}
}

// MaxMessages returns the per-session user message budget.
func (c *ChatManager) MaxMessages() int { return maxChatMessages }

// session returns the job's chat session, creating it if the job is
// eligible. Chat requires a finished analysis (completed or partial);
// the workbook and any dashboard are captured at session creation.
func (c *ChatManager) session(ctx context.Context, jobID, ownerID string) (*chatSession, error) {
	if ownerID == "" {
		ownerID = GuestOwner
	}

	c.mu.Lock()
	if s, ok := c.sessions[jobID]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	snap, err := c.supervisor.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if snap.OwnerID != ownerID {
		// Do not leak other owners' job ids.
		return nil, ErrNotFound
	}
	if snap.Status != store.StatusCompleted && snap.Status != store.StatusPartial {
		return nil, fmt.Errorf("job %s is %s, chat requires a finished analysis: %w",
			jobID, snap.Status, ErrInvalidState)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[jobID]; ok {
		return s, nil
	}
	s := &chatSession{input: snap.Input, resultRef: snap.ResultRef}
	c.sessions[jobID] = s
	c.log.Info("chat session opened", "job_id", jobID, "owner_id", ownerID)
	return s, nil
}

// Send runs one chat turn and returns the assistant's reply and the
// remaining message budget. The budget is charged only when the engine
// answered; a failed turn can be retried for free.
func (c *ChatManager) Send(ctx context.Context, jobID, ownerID, message string) (string, int, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", 0, fmt.Errorf("chat message is required: %w", ErrInvalidState)
	}

	s, err := c.session(ctx, jobID, ownerID)
	if err != nil {
		return "", 0, err
	}

	// The turn holds the session lock for its whole duration, which
	// serializes concurrent messages on the same job and keeps the
	// history the engine sees consistent.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userCount >= maxChatMessages {
		return "", 0, fmt.Errorf("session for job %s: %w", jobID, ErrChatLimit)
	}

	history := make([]ChatMessage, len(s.messages))
	copy(history, s.messages)

	reply, err := c.responder.Respond(ctx, s.input, s.resultRef, history, message)
	if err != nil {
		return "", maxChatMessages - s.userCount, fmt.Errorf("chat turn for job %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	s.messages = append(s.messages,
		ChatMessage{Role: "user", Content: message, Timestamp: now},
		ChatMessage{Role: "assistant", Content: reply, Timestamp: now},
	)
	s.userCount++

	return reply, maxChatMessages - s.userCount, nil
}

// History returns the session's conversation so far and the remaining
// message budget. A job without a session yet reports an empty history
// if chat would be possible, and the job's usual errors otherwise.
func (c *ChatManager) History(ctx context.Context, jobID, ownerID string) ([]ChatMessage, int, error) {
	s, err := c.session(ctx, jobID, ownerID)
	if err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out, maxChatMessages - s.userCount, nil
}
