package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sheetsight/internal/job"
	"sheetsight/internal/server/middleware"
	"sheetsight/internal/store"
	"sheetsight/pkg/api"
)

// scriptedResponder answers every chat turn with a fixed reply.
type scriptedResponder struct {
	reply string
	err   error
}

func (r *scriptedResponder) Respond(_ context.Context, _ store.InputRef, _ string, _ []job.ChatMessage, _ string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func chatMux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs/{id}/chat", h.ChatSend)
	mux.HandleFunc("GET /jobs/{id}/chat", h.ChatHistory)
	return mux
}

func postChat(t *testing.T, mux *http.ServeMux, owner, jobID, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(api.ChatRequest{Message: message})
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+jobID+"/chat", bytes.NewReader(body))
	req = req.WithContext(middleware.NewContextWithOwner(req.Context(), owner))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestChatSend(t *testing.T) {
	h := newTestHandlers(t, newFakeDB(), nil)
	jobID := createTestJob(t, h, "user-1")
	waitForTerminal(t, h, "user-1", jobID)
	mux := chatMux(h)

	rr := postChat(t, mux, "user-1", jobID, "what stands out in this data?")
	if rr.Code != http.StatusOK {
		t.Fatalf("chat status = %d body: %s", rr.Code, rr.Body.String())
	}
	var resp api.ChatResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.JobID != jobID {
		t.Errorf("job id = %q, want %q", resp.JobID, jobID)
	}
	if resp.Reply != "The totals line up." {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.Remaining != 14 {
		t.Errorf("remaining = %d, want 14", resp.Remaining)
	}

	// Cross-owner and unknown jobs both read as 404.
	if rr := postChat(t, mux, "user-2", jobID, "hello"); rr.Code != http.StatusNotFound {
		t.Errorf("cross-owner chat status = %d, want 404", rr.Code)
	}
	if rr := postChat(t, mux, "user-1", "no-such-job", "hello"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown job chat status = %d, want 404", rr.Code)
	}

	// An empty message is a conflict, not a spent turn.
	if rr := postChat(t, mux, "user-1", jobID, "  "); rr.Code != http.StatusConflict {
		t.Errorf("empty message status = %d, want 409", rr.Code)
	}
}

func TestChatSend_RejectsUnfinishedJob(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h := newTestHandlers(t, newFakeDB(), &signalRunner{release: release})
	jobID := createTestJob(t, h, "user-1")
	mux := chatMux(h)

	rr := postChat(t, mux, "user-1", jobID, "too early")
	if rr.Code != http.StatusConflict {
		t.Errorf("chat on running job status = %d, want 409", rr.Code)
	}
}

func TestChatSend_LimitReached(t *testing.T) {
	h := newTestHandlers(t, newFakeDB(), nil)
	jobID := createTestJob(t, h, "user-1")
	waitForTerminal(t, h, "user-1", jobID)
	mux := chatMux(h)

	for i := 0; i < h.chat.MaxMessages(); i++ {
		if rr := postChat(t, mux, "user-1", jobID, "question"); rr.Code != http.StatusOK {
			t.Fatalf("turn %d status = %d", i, rr.Code)
		}
	}

	rr := postChat(t, mux, "user-1", jobID, "one more")
	if rr.Code != http.StatusConflict {
		t.Fatalf("over-limit status = %d, want 409", rr.Code)
	}
	var errResp api.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &errResp)
	if errResp.Error == "" {
		t.Error("over-limit response has no error message")
	}
}

func TestChatHistory(t *testing.T) {
	h := newTestHandlers(t, newFakeDB(), nil)
	jobID := createTestJob(t, h, "user-1")
	waitForTerminal(t, h, "user-1", jobID)
	mux := chatMux(h)

	get := func(owner, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+id+"/chat", nil)
		req = req.WithContext(middleware.NewContextWithOwner(req.Context(), owner))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}

	// A finished job with no conversation yet has an empty history.
	rr := get("user-1", jobID)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d body: %s", rr.Code, rr.Body.String())
	}
	var resp api.ChatHistoryResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Messages) != 0 {
		t.Errorf("fresh history has %d messages", len(resp.Messages))
	}

	postChat(t, mux, "user-1", jobID, "what stands out?")

	rr = get("user-1", jobID)
	resp = api.ChatHistoryResponse{}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Messages) != 2 {
		t.Fatalf("history has %d messages, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Role != "user" || resp.Messages[0].Content != "what stands out?" {
		t.Errorf("messages[0] = %+v", resp.Messages[0])
	}
	if resp.Messages[1].Role != "assistant" || resp.Messages[1].Content != "The totals line up." {
		t.Errorf("messages[1] = %+v", resp.Messages[1])
	}
	if resp.Remaining != 14 {
		t.Errorf("remaining = %d, want 14", resp.Remaining)
	}

	if rr := get("user-2", jobID); rr.Code != http.StatusNotFound {
		t.Errorf("cross-owner history status = %d, want 404", rr.Code)
	}
}
