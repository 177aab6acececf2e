package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveLimited(t *testing.T, mw func(http.Handler) http.Handler, owner string) int {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req = req.WithContext(NewContextWithOwner(req.Context(), owner))
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimit_EnforcesBurst(t *testing.T) {
	mw := RateLimit(1, 2)

	if code := serveLimited(t, mw, "user-1"); code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
	if code := serveLimited(t, mw, "user-1"); code != http.StatusOK {
		t.Fatalf("second request status = %d", code)
	}
	if code := serveLimited(t, mw, "user-1"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
}

func TestRateLimit_IsPerOwner(t *testing.T) {
	mw := RateLimit(1, 1)

	if code := serveLimited(t, mw, "user-1"); code != http.StatusOK {
		t.Fatalf("user-1 first request status = %d", code)
	}
	if code := serveLimited(t, mw, "user-1"); code != http.StatusTooManyRequests {
		t.Fatalf("user-1 second request status = %d, want 429", code)
	}

	// A different owner has its own bucket.
	if code := serveLimited(t, mw, "user-2"); code != http.StatusOK {
		t.Errorf("user-2 first request status = %d, want 200", code)
	}
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	mw := RateLimit(0, 0)

	for i := 0; i < 10; i++ {
		if code := serveLimited(t, mw, "user-1"); code != http.StatusOK {
			t.Fatalf("request %d status = %d with limiting disabled", i, code)
		}
	}
}
