package http

import (
	"net/http"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/httpx"
)

// LivezHandler reports process liveness.
type LivezHandler struct {
	Version   string
	StartTime time.Time
}

func (h *LivezHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.Version,
		"uptime":  time.Since(h.StartTime).String(),
	})
}

// ReadyzHandler reports readiness, which requires a reachable store.
type ReadyzHandler struct {
	Version   string
	StartTime time.Time
	Store     store.Store
}

func (h *ReadyzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"reason": "store unreachable",
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.Version,
		"uptime":  time.Since(h.StartTime).String(),
	})
}
