// Package auth handles API key hashing for sheetsight accounts.
// Keys are stored only as digests: the plaintext key is shown once at
// registration and never persisted.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey returns the hex SHA-256 digest of an API key. Leading and
// trailing whitespace is stripped first, so a key pasted from a
// terminal or an email still matches its stored digest.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
