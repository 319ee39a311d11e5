package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports whether the server and its database are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": h.hub.Count(),
	})
}
