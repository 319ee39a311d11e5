// Package chatsync keeps the client's message list in step with the
// backend: every remote snapshot replaces the list wholesale and is written
// through to the local cache, and a cold start paints the cached copy until
// the first live snapshot arrives.
package chatsync

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/cache"
	"roomchat/models"
)

// Persister is the write-through target of the reducer.
type Persister interface {
	NextVersion() uint64
	SaveVersion(ctx context.Context, version uint64, snapshot []models.ChatMessage)
	Load(ctx context.Context) ([]models.ChatMessage, bool)
}

var _ Persister = (*cache.Store)(nil)

// Reducer owns the in-memory message list of one chat screen activation.
type Reducer struct {
	store  Persister
	logger zerolog.Logger

	// OnChange is called with a copy of the list after every replacement,
	// before the write-through. Set it before the first Apply or Prime.
	OnChange func([]models.ChatMessage)

	mu       sync.Mutex
	messages []models.ChatMessage
	live     bool
	closed   bool
}

// NewReducer creates a reducer persisting through store.
func NewReducer(store Persister, logger zerolog.Logger) *Reducer {
	return &Reducer{
		store:    store,
		logger:   logger,
		messages: []models.ChatMessage{},
	}
}

// Prime paints the cached snapshot if one exists and no live snapshot has
// been applied yet. It reports whether the list was replaced.
func (r *Reducer) Prime(ctx context.Context) bool {
	r.mu.Lock()
	if r.closed || r.live {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	cached, ok := r.store.Load(ctx)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// a live snapshot may have landed while the cache was being read
	if r.closed || r.live {
		return false
	}
	r.messages = cached
	r.notify()
	r.logger.Debug().Int("count", len(cached)).Msg("painted cached history")
	return true
}

// Apply replaces the list with the given remote snapshot and writes it
// through to the cache. It is a no-op once the reducer is closed.
func (r *Reducer) Apply(ctx context.Context, docs []models.Document) {
	next := make([]models.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		next = append(next, FromDocument(doc))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.messages = next
	r.live = true
	version := r.store.NextVersion()
	r.notify()
	r.mu.Unlock()

	r.store.SaveVersion(ctx, version, next)
}

// notify must be called with mu held.
func (r *Reducer) notify() {
	if r.OnChange != nil {
		r.OnChange(r.copyLocked())
	}
}

// Messages returns a copy of the current list.
func (r *Reducer) Messages() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Reducer) copyLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// Close stops the reducer. Later Apply and Prime calls do nothing.
func (r *Reducer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// FromDocument maps a schema-less remote record into a ChatMessage. Missing
// or non-string fields fall back to "" for text and user and nil for
// imageUrl.
func FromDocument(doc models.Document) models.ChatMessage {
	msg := models.ChatMessage{
		ID:   doc.ID,
		Text: stringField(doc.Data, "text"),
		User: stringField(doc.Data, "user"),
	}
	if v, ok := doc.Data["imageUrl"].(string); ok {
		msg.ImageURL = &v
	}
	return msg
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
