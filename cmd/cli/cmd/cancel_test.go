package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sheetsight/pkg/api"

	"github.com/spf13/viper"
)

func TestCancelCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/job-123/cancel" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output, err := runCommand("cancel", "job-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Cancellation requested for job-123") {
		t.Errorf("expected confirmation, got: %s", output)
	}
}

func TestCancelCommand_AlreadyFinished(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job already finished"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output, err := runCommand("cancel", "job-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Failed to cancel") || !strings.Contains(output, "409") {
		t.Errorf("expected 409 error, got: %s", output)
	}
}

func TestCancelCommand_RequiresJobIDArgument(t *testing.T) {
	resetViper()

	if _, err := runCommand("cancel"); err == nil {
		t.Error("expected error when no job ID provided")
	}
}
