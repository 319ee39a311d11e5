package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"roomchat/database"
	"roomchat/metrics"
	"roomchat/middleware"
	"roomchat/models"
)

// Limits inherited from the hosted document store the client was written for.
const (
	MaxDocumentBytes = 1 << 20
	MaxTextLength    = 500
)

// ListMessages returns the whole room as ordered snapshot documents.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	// The load is shared by every coalesced caller, so it must not die
	// with the first one's request.
	ctx := context.WithoutCancel(r.Context())
	v, err, _ := h.reads.Do("messages", func() (interface{}, error) {
		return LoadSnapshot(ctx, h.db)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list messages")
		h.Error(w, http.StatusInternalServerError, "Failed to get messages")
		return
	}

	h.JSON(w, http.StatusOK, models.SnapshotPayload{Documents: v.([]models.Document)})
}

// LoadSnapshot loads the full ordered collection as snapshot documents.
func LoadSnapshot(ctx context.Context, db *database.DB) ([]models.Document, error) {
	messages, err := db.ListMessages(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(messages))
	for i := range messages {
		docs = append(docs, messages[i].ToDocument())
	}
	return docs, nil
}

// SendMessage appends a message to the global room
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentBytes)

	var req models.NewMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, http.StatusRequestEntityTooLarge, "Message exceeds 1 MiB")
			return
		}
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hasImage := req.ImageURL != nil && *req.ImageURL != ""
	if strings.TrimSpace(req.Text) == "" && !hasImage {
		h.Error(w, http.StatusBadRequest, "Message text or image is required")
		return
	}

	if utf8.RuneCountInString(req.Text) > MaxTextLength {
		h.Error(w, http.StatusBadRequest, "Message exceeds 500 characters")
		return
	}

	if hasImage && !strings.HasPrefix(*req.ImageURL, "data:") {
		h.Error(w, http.StatusBadRequest, "Image must be an inline data URI")
		return
	}
	if !hasImage {
		req.ImageURL = nil
	}

	message := &models.Message{
		Text:     req.Text,
		User:     user.Email,
		UserID:   user.UID(),
		ImageURL: req.ImageURL,
	}
	if err := h.db.CreateMessage(r.Context(), message); err != nil {
		h.logger.Error().Err(err).Msg("failed to store message")
		h.Error(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	kind := "text"
	if hasImage {
		kind = "image"
	}
	metrics.MessagesPosted.WithLabelValues(kind).Inc()

	h.hub.Notify()

	h.JSON(w, http.StatusCreated, message)
}
