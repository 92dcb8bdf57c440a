package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// NewRefreshToken returns a new opaque refresh token (base64url, no padding).
// Only its HashRefreshToken value may be persisted.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken is the lookup key of a refresh token in the session store (SHA-256, hex).
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MatchesRefreshHash reports whether token hashes to stored, in constant time.
// Nothing matches an empty token or an empty stored hash.
func MatchesRefreshHash(token, stored string) bool {
	if token == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(token)), []byte(stored)) == 1
}
