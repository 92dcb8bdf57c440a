package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/policy/engine"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
)

const bearerPrefix = "bearer "

// UserIDHeader carries the authenticated principal to downstream handlers and services.
const UserIDHeader = "X-User-Id"

// SessionValidator reports whether the session behind a valid access token is still live.
// Used to reject tokens of sessions that were revoked before the token expired.
type SessionValidator func(ctx context.Context, sessionID string) (bool, error)

// Authenticate returns middleware that validates the Bearer access token and sets
// principal_id and session_id in the request context for protected paths.
// policy decides which paths are public; a policy error makes the path protected.
// sessionValidator may be nil.
func Authenticate(tokens *security.TokenProvider, policy engine.Evaluator, sessionValidator SessionValidator, log logrus.FieldLogger) func(http.Handler) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Never trust an identity header set by the client.
			r.Header.Del(UserIDHeader)

			public, _ := policy.IsPublic(r.Context(), r.Method, r.URL.Path)
			token := extractBearer(r)
			if token == "" {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}

			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			if sessionValidator != nil && !public {
				ok, err := sessionValidator(r.Context(), claims.SessionID)
				if err != nil {
					log.WithError(err).WithField("session_id", claims.SessionID).Warn("auth: session check failed")
					writeError(w, http.StatusServiceUnavailable, "unavailable", "authentication temporarily unavailable")
					return
				}
				if !ok {
					unauthorized(w)
					return
				}
			}

			r.Header.Set(UserIDHeader, claims.PrincipalID)
			ctx := WithIdentity(r.Context(), claims.PrincipalID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="meetmate"`)
	writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
