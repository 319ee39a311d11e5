package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"roomchat/models"
)

// SnapshotHandler receives every snapshot in delivery order. Calls never
// overlap.
type SnapshotHandler func(docs []models.Document)

// ErrNotSignedIn is returned when an operation needs a session.
var ErrNotSignedIn = errors.New("not signed in")

// Subscription is one open realtime stream.
type Subscription struct {
	conn    *websocket.Conn
	handler SnapshotHandler

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	err    error
}

// Subscribe opens the realtime stream of the room ordered by createdAt.
// The handler runs on the subscription's reader goroutine for the initial
// snapshot and after every change, until Close.
func (c *Client) Subscribe(ctx context.Context, handler SnapshotHandler) (*Subscription, error) {
	token := c.token()
	if token == "" {
		return nil, ErrNotSignedIn
	}

	wsURL := "ws" + strings.TrimPrefix(c.BaseURL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("subscribe rejected: %s", resp.Status)}
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &Subscription{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}
	go sub.readLoop()
	return sub, nil
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Subscription) readLoop() {
	defer close(s.done)

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		if f.Type != models.FrameSnapshot {
			continue
		}

		var payload models.SnapshotPayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			continue
		}
		if payload.Documents == nil {
			payload.Documents = []models.Document{}
		}

		// The handler runs under the lock so Close cannot return while a
		// delivery is in flight, and nothing is delivered after it.
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.handler(payload.Documents)
		s.mu.Unlock()
	}
}

// Done is closed when the stream ends, by Close or by the connection dropping.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the stream ended on its own; nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. It is safe to call more than once and from any
// goroutine except the handler itself.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	<-s.done
	return err
}
