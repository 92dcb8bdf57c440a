package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientIP stores the caller's IP in the request context for the audit logger.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey, requestIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP returns the IP stored by ClientIP, or "unknown". It satisfies audit.IPExtractor.
func GetClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// requestIP returns the client IP from X-Forwarded-For, X-Real-IP or the remote address.
func requestIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		s := xff
		if i := strings.Index(s, ","); i > 0 {
			s = s[:i]
		}
		if ip := normalizeIP(s); ip != "" {
			return ip
		}
	}
	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := normalizeIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
