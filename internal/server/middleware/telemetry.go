package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/domain"
)

// Telemetry emits an http_request event after each request whose path is not in skipPaths.
// Best-effort: emits run asynchronously and never fail the request. A nil emitter no-ops.
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if emitter == nil || skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			principalID, _ := GetPrincipalID(r.Context())
			sessionID, _ := GetSessionID(r.Context())
			telemetry.EmitAsync(emitter, r.Context(), &domain.Event{
				PrincipalID: principalID,
				SessionID:   sessionID,
				EventType:   domain.EventHTTPRequest,
				Source:      "http_middleware",
				Metadata: map[string]string{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status_code": strconv.Itoa(sr.status),
					"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
					"client_ip":   GetClientIP(r.Context()),
				},
			})
		})
	}
}
