package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
)

// Error codes returned in ErrorResponse.Error. Clients branch on these.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeInvalidCredential = "invalid_credential"
	CodeRateLimited       = "rate_limited"
	CodeAccountLocked     = "account_locked"
	CodeSessionEnded      = "session_ended"
	CodeEmailTaken        = "email_taken"
	CodeUnavailable       = "unavailable"
	CodeUnauthenticated   = "unauthenticated"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

// statusFor maps a service error to an HTTP status, code and client-safe message.
// Rotation verdicts all collapse to "session ended".
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, credential.ErrInvalidCredential):
		return http.StatusUnauthorized, CodeInvalidCredential, "invalid email or password"
	case errors.Is(err, credential.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later"
	case errors.Is(err, credential.ErrAccountLocked):
		return http.StatusLocked, CodeAccountLocked, "account temporarily locked"
	case issuer.IsTerminal(err):
		return http.StatusUnauthorized, CodeSessionEnded, "session ended"
	case issuer.IsRetryable(err):
		return http.StatusServiceUnavailable, CodeUnavailable, "service temporarily unavailable"
	case errors.Is(err, credential.ErrEmailTaken):
		return http.StatusConflict, CodeEmailTaken, "email already registered"
	case errors.Is(err, credential.ErrInvalidEmail), errors.Is(err, credential.ErrWeakPassword):
		return http.StatusBadRequest, CodeInvalidRequest, err.Error()
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
