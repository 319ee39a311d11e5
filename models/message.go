package models

import "time"

// Message is one post in the global room as stored by the backend.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	User      string    `json:"user"` // sender email
	UserID    string    `json:"userId"`
	ImageURL  *string   `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage is the remote write payload. The sender and the ordering
// timestamp are assigned by the backend.
type NewMessage struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"imageUrl"`
}

// Document is the wire shape of one record inside a snapshot. Data is
// deliberately untyped: readers must tolerate any field being absent.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// ToDocument converts a stored message into its snapshot representation.
func (m *Message) ToDocument() Document {
	data := map[string]any{
		"text":      m.Text,
		"user":      m.User,
		"userId":    m.UserID,
		"createdAt": m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.ImageURL != nil {
		data["imageUrl"] = *m.ImageURL
	} else {
		data["imageUrl"] = nil
	}
	return Document{ID: m.ID, Data: data}
}

// ChatMessage is the client-side representation of a message, and the
// element type of the cached snapshot.
type ChatMessage struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	User     string  `json:"user"`
	ImageURL *string `json:"imageUrl"`
}

// HasImage reports whether the message carries an inline image.
func (m ChatMessage) HasImage() bool {
	return m.ImageURL != nil && *m.ImageURL != ""
}

// WebSocket frame types
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// WebSocketMessage is the format for real-time messages
type WebSocketMessage struct {
	Type    string      `json:"type"` // "snapshot", "error"
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the payload of a snapshot frame: the full ordered
// collection, not a delta.
type SnapshotPayload struct {
	Documents []Document `json:"documents"`
}
