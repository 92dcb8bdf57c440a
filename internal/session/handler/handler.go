// Package handler exposes the session lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit"
	auditdomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	principalrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/server/middleware"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
	telemetrydomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/domain"
)

// maxBodyBytes bounds request bodies; every auth request is a small JSON object.
const maxBodyBytes = 16 << 10

// Handler serves the auth API. Audit, Events, Metrics and Log are optional.
type Handler struct {
	Registrar  *credential.Registrar
	Verifier   credential.Verifier
	Issuer     *issuer.Issuer
	Principals principalrepo.Repository
	Audit      audit.AuditLogger
	Events     telemetry.EventEmitter
	Metrics    *metrics.Metrics
	Log        logrus.FieldLogger
}

// Routes mounts the auth API on r. Authentication of the protected routes is
// done by the gateway middleware; handlers read the identity from context.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/logout-all", h.logoutAll)
		r.Get("/sessions", h.sessions)
	})
	r.Get("/api/me", h.me)
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Registrar.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r.Context(), p.ID, "", auditdomain.ActionRegister, "")
	writeJSON(w, http.StatusCreated, principalResponse(p))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	principalID, err := h.Verifier.Verify(r.Context(), credential.Credential{
		Kind: credential.KindPassword, Identifier: req.Email, Secret: req.Password,
	})
	if err != nil {
		h.Metrics.Login("failure")
		md, _ := json.Marshal(map[string]string{"identifier": req.Email, "reason": err.Error()})
		h.audit(r.Context(), "", "", auditdomain.ActionLoginFailure, string(md))
		telemetry.EmitAsync(h.Events, r.Context(), &telemetrydomain.Event{
			EventType: telemetrydomain.EventLoginFailed,
			Source:    "http",
			Metadata:  map[string]string{"reason": err.Error(), "client_ip": middleware.GetClientIP(r.Context())},
		})
		h.fail(w, r, err)
		return
	}
	pair, _, err := h.Issuer.Issue(r.Context(), principalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Metrics.Login("success")
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.Issuer.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// logout revokes the session of the presented refresh token. It answers 204
// for unknown tokens too.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Issuer.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.GetPrincipalID(r.Context())
	if !ok || principalID == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid authorization")
		return
	}
	n, err := h.Issuer.RevokeAllForPrincipal(r.Context(), principalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RevokedResponse{Revoked: n})
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.GetPrincipalID(r.Context())
	if !ok || principalID == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid authorization")
		return
	}
	list, err := h.Issuer.ListActive(r.Context(), principalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	current, _ := middleware.GetSessionID(r.Context())
	out := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse(s, current))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.GetPrincipalID(r.Context())
	if !ok || principalID == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid authorization")
		return
	}
	p, err := h.Principals.GetByID(r.Context(), principalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "principal not found")
		return
	}
	writeJSON(w, http.StatusOK, principalResponse(p))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	entry := h.logger().WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "code": code})
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("auth request failed")
	default:
		entry.Debug("auth request rejected")
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(60))
	}
	writeError(w, status, code, msg)
}

func (h *Handler) audit(ctx context.Context, principalID, sessionID, action, metadata string) {
	if h.Audit != nil {
		h.Audit.LogEvent(ctx, principalID, sessionID, action, metadata)
	}
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body")
		return false
	}
	if fields := validateStruct(dst); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: "validation failed", Fields: fields})
		return false
	}
	return true
}
