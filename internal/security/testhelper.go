package security

import (
	"crypto"
	"sync"
	"time"
)

// testKey is generated once per process so every NewTestTokenProvider in a test
// binary verifies the others' tokens.
var testKey = sync.OnceValues(func() (crypto.Signer, error) {
	signer, _, err := GenerateEphemeralKey()
	return signer, err
})

// NewTestTokenProvider returns a TokenProvider with a process-wide ES256 key and a
// 15 minute access lifetime. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, err := testKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, signer.Public(), "test-issuer", "test-audience", 15*time.Minute), nil
}
