// Package credential verifies what a client presents at login and maps it to a principal.
package credential

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for verification; handlers map them to HTTP status codes.
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRateLimited       = errors.New("too many attempts")
	ErrAccountLocked     = errors.New("account temporarily locked")
)

// Kind names a credential transport.
type Kind string

const KindPassword Kind = "password"

// Credential is an opaque proof of identity. Secret must never be logged.
type Credential struct {
	Kind       Kind
	Identifier string
	Secret     string
}

// String redacts the secret so a Credential is safe in log fields.
func (c Credential) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Identifier)
}

// Verifier turns a credential into a principal ID.
//
// A wrong credential yields ErrInvalidCredential whatever the cause (unknown
// identifier, wrong secret, disabled account). Other errors are infrastructure
// failures and must not be reported to the user as a bad credential.
type Verifier interface {
	Verify(ctx context.Context, c Credential) (principalID string, err error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, c Credential) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, c Credential) (string, error) { return f(ctx, c) }

// Mux dispatches to a Verifier by credential kind.
type Mux struct {
	verifiers map[Kind]Verifier
}

func NewMux() *Mux {
	return &Mux{verifiers: make(map[Kind]Verifier)}
}

// Handle registers v for kind, replacing any previous registration.
func (m *Mux) Handle(kind Kind, v Verifier) *Mux {
	m.verifiers[kind] = v
	return m
}

// Verify routes c to its kind's verifier. An empty kind means password.
// Unregistered kinds are rejected as invalid credentials.
func (m *Mux) Verify(ctx context.Context, c Credential) (string, error) {
	kind := c.Kind
	if kind == "" {
		kind = KindPassword
	}
	v, ok := m.verifiers[kind]
	if !ok {
		return "", fmt.Errorf("%w: unsupported kind %q", ErrInvalidCredential, kind)
	}
	return v.Verify(ctx, c)
}
