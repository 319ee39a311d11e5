package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/metrics"
	"roomchat/middleware"
	"roomchat/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Native and terminal clients send no Origin
	},
}

// SnapshotLoader returns the full ordered collection.
type SnapshotLoader func(ctx context.Context) ([]models.Document, error)

// Client represents a WebSocket subscriber
type Client struct {
	ID     string
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub maintains the set of active subscribers and pushes a full snapshot
// to each of them on connect and after every change.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	changed    chan struct{}
	done       chan struct{}
	load       SnapshotLoader
	logger     zerolog.Logger
	mutex      sync.RWMutex
}

// NewHub creates a hub that reads snapshots through load.
func NewHub(load SnapshotLoader, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		changed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		load:       load,
		logger:     logger,
	}
}

// Run starts the hub loop. Snapshots are loaded inside the loop, so
// subscribers see them in write order. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("hub shutting down")
			h.closeAllClients()
			close(h.done)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			metrics.SubscribersConnected.Inc()
			h.logger.Debug().Str("client", client.ID).Int64("user_id", client.UserID).Msg("subscriber connected")

			if frame, err := h.snapshotFrame(ctx); err == nil {
				h.deliver(client, frame)
			}

		case client := <-h.unregister:
			h.remove(client)

		case <-h.changed:
			frame, err := h.snapshotFrame(ctx)
			if err != nil {
				continue
			}
			h.mutex.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				targets = append(targets, client)
			}
			h.mutex.RUnlock()

			for _, client := range targets {
				h.deliver(client, frame)
			}
			metrics.SnapshotsBroadcast.Inc()
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Notify marks the collection as changed. Notifications arriving while a
// snapshot is being pushed coalesce into one more push.
func (h *Hub) Notify() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Register adds a subscriber; it is a no-op once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshotFrame(ctx context.Context) ([]byte, error) {
	docs, err := h.load(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load snapshot")
		return nil, err
	}

	data, err := json.Marshal(models.WebSocketMessage{
		Type:    models.FrameSnapshot,
		Payload: models.SnapshotPayload{Documents: docs},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode snapshot")
		return nil, err
	}
	return data, nil
}

// deliver queues a frame, dropping subscribers that fell behind.
func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case client.Send <- frame:
	default:
		h.logger.Warn().Str("client", client.ID).Msg("subscriber too slow, dropping")
		metrics.SubscribersDropped.Inc()
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		metrics.SubscribersConnected.Dec()
		h.logger.Debug().Str("client", client.ID).Msg("subscriber disconnected")
	}
}

// closeAllClients closes all connected client connections.
func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		close(client.Send)
		metrics.SubscribersConnected.Dec()
	}
	h.clients = make(map[*Client]bool)
}

// HandleWebSocket upgrades an authenticated request into a snapshot subscription.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}

	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.hub, h.logger)
}

// readPump only watches for the peer going away; subscribers send nothing.
func (c *Client) readPump(hub *Hub, logger zerolog.Logger) {
	defer func() {
		hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Str("client", c.ID).Msg("websocket error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
