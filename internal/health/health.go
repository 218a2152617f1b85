// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness check; always returns 200 OK.
//   - /readyz: readiness check; returns 200 only when every required
//     [Checker] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map containing the result of each
// named checker. A failing optional checker degrades the status without
// failing the check; a session still runs without a microphone, its turns
// simply fail softly.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Status values reported in the response body.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "backend", "microphone").
	// It appears as a key in the JSON response.
	Name string

	// Check inspects the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Optional checks degrade the status instead of failing it.
	Optional bool
}

// BackendHealth is implemented by the backend client.
type BackendHealth interface {
	HealthCheck(ctx context.Context) bool
}

// Backend returns a required checker that pings the simulation service.
func Backend(p BackendHealth) Checker {
	return Checker{
		Name: "backend",
		Check: func(ctx context.Context) error {
			if !p.HealthCheck(ctx) {
				return errors.New("simulation service unreachable")
			}
			return nil
		},
	}
}

// MicrophoneStatus is implemented by the audio recorder.
type MicrophoneStatus interface {
	Available() bool
}

// Microphone returns an optional checker that reports whether an input
// device is present. Turns fail softly without one; the session still runs.
func Microphone(m MicrophoneStatus) Checker {
	return Checker{
		Name:     "microphone",
		Optional: true,
		Check: func(context.Context) error {
			if !m.Available() {
				return errors.New("no input device")
			}
			return nil
		},
	}
}

// Report is the JSON response body for health endpoints.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness check that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz returns 200 unless a required [Checker] fails. Each checker is given
// a context with a [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Evaluate(r.Context())
	status := http.StatusOK
	if res.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Evaluate runs every checker and returns the combined status and the
// per-check results. The "consultorio check" command prints this.
func (h *Handler) Evaluate(ctx context.Context) (res Report) {
	res = Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		switch {
		case err == nil:
			res.Checks[c.Name] = StatusOK
		case c.Optional:
			res.Checks[c.Name] = StatusDegraded + ": " + err.Error()
			if res.Status == StatusOK {
				res.Status = StatusDegraded
			}
		default:
			res.Checks[c.Name] = StatusFail + ": " + err.Error()
			res.Status = StatusFail
		}
	}
	return res
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
