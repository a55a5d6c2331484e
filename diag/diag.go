// Package diag exposes dispatcher health over HTTP for liveness probes and
// dashboards. The handler is mounted by the host application; the library
// never starts a server on its own.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/farolabs/beacon"
)

// Handler serves GET /healthz and GET /status for one dispatcher.
type Handler struct {
	dispatcher *beacon.Dispatcher
	router     chi.Router
}

// NewHandler creates an HTTP handler reporting the dispatcher's health.
func NewHandler(dispatcher *beacon.Dispatcher) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		router:     chi.NewRouter(),
	}

	h.router.Use(middleware.Recoverer)
	h.router.Use(middleware.Timeout(10 * time.Second))
	h.router.Get("/healthz", h.handleHealthz)
	h.router.Get("/status", h.handleStatus)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// healthzResponse is the liveness summary.
type healthzResponse struct {
	Status  string `json:"status"`
	Healthy int    `json:"healthy"`
	Total   int    `json:"total"`
}

// handleHealthz reports 200 while at least one interceptor can receive
// events, 503 otherwise.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := h.dispatcher.HealthStatus()

	healthy := 0
	for _, status := range statuses {
		if status.CanHandleEvents {
			healthy++
		}
	}

	response := healthzResponse{
		Status:  "ok",
		Healthy: healthy,
		Total:   len(statuses),
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy == 0 {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// statusResponse is the full per-interceptor report.
type statusResponse struct {
	Interceptors []beacon.InterceptorHealth `json:"interceptors"`
}

// handleStatus reports every interceptor's tracker state in registration
// order.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := statusResponse{
		Interceptors: h.dispatcher.HealthStatus(),
	}
	if response.Interceptors == nil {
		response.Interceptors = []beacon.InterceptorHealth{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
