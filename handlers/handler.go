package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"roomchat/database"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     *database.DB
	hub    *Hub
	logger zerolog.Logger
	reads  singleflight.Group
}

// NewHandler creates a new Handler. The hub is notified after every
// successful write so subscribers receive a fresh snapshot.
func NewHandler(db *database.DB, hub *Hub, logger zerolog.Logger) *Handler {
	return &Handler{db: db, hub: hub, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
