// Package handler serves liveness, readiness and build info over HTTP and gRPC.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// HTTP serves /actuator/health and /actuator/info.
type HTTP struct {
	checker *Checker
	info    map[string]string
	log     logrus.FieldLogger
}

// NewHTTP returns the actuator handler. info is returned verbatim by /actuator/info.
func NewHTTP(checker *Checker, info map[string]string, log logrus.FieldLogger) *HTTP {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTP{checker: checker, info: info, log: log}
}

func (h *HTTP) Routes(r chi.Router) {
	r.Get("/actuator/health", h.health)
	r.Get("/actuator/info", h.infoHandler)
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentHealth `json:"components,omitempty"`
}

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *HTTP) health(w http.ResponseWriter, r *http.Request) {
	st := h.checker.Run(r.Context())
	resp := healthResponse{Status: "UP", Components: make(map[string]componentHealth, len(st.Components))}
	code := http.StatusOK
	for name, err := range st.Components {
		c := componentHealth{Status: "UP"}
		if err != nil {
			c = componentHealth{Status: "DOWN", Error: err.Error()}
			h.log.WithError(err).WithField("component", name).Warn("health: check failed")
		}
		resp.Components[name] = c
	}
	if !st.Up {
		resp.Status = "DOWN"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HTTP) infoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
