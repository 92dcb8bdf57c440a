package issuer

import (
	"context"
	"errors"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
)

// Rotation verdicts. Each is terminal: the presented refresh token will never rotate.
var (
	ErrRotationNotFound = errors.New("refresh token not recognized")
	ErrRotationExpired  = errors.New("refresh token expired")
	ErrRotationReused   = errors.New("refresh token reuse detected")
)

// ErrStoreUnavailable is the store's retryable failure, re-exported for callers of the issuer.
var ErrStoreUnavailable = repository.ErrStoreUnavailable

// IsTerminal reports whether err is a rotation verdict that ends the session.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRotationNotFound) ||
		errors.Is(err, ErrRotationExpired) ||
		errors.Is(err, ErrRotationReused)
}

// IsRetryable reports whether err is a transient failure after which the same
// refresh token may be presented again.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
