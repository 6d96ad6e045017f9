package handlers

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       pinger
	presence map[string]bool
}

// NewHealthHandler reports database reachability and which settings are present.
func NewHealthHandler(db pinger, presence map[string]bool) *HealthHandler {
	return &HealthHandler{db: db, presence: presence}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code, dbState := "ok", http.StatusOK, "connected"
	if err := h.db.Ping(ctx); err != nil {
		status, code, dbState = "degraded", http.StatusServiceUnavailable, err.Error()
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"database": dbState,
		"env":      h.presence,
	})
}
