package auth

import (
	"testing"
)

func TestHashKey(t *testing.T) {
	hash := HashKey("ss_1234567890abcdef")

	if len(hash) != 64 {
		t.Errorf("HashKey() returned %d chars, want 64 hex chars", len(hash))
	}
	if hash != HashKey("ss_1234567890abcdef") {
		t.Error("HashKey is not deterministic")
	}
	if hash == HashKey("ss_fedcba0987654321") {
		t.Error("different keys produced the same digest")
	}
}

func TestHashKey_TrimsWhitespace(t *testing.T) {
	// A key pasted with surrounding whitespace must still authenticate.
	want := HashKey("ss_1234567890abcdef")
	if got := HashKey("  ss_1234567890abcdef\n"); got != want {
		t.Errorf("HashKey with whitespace = %v, want %v", got, want)
	}
}

func TestHashKey_EmptyKey(t *testing.T) {
	// SHA-256 of the empty string; an empty key still hashes cleanly
	// and simply never matches a stored digest.
	const emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashKey(""); got != emptyDigest {
		t.Errorf("HashKey(\"\") = %v, want %v", got, emptyDigest)
	}
}
