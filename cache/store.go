package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/models"
)

// HistoryKey is the fixed, global slot holding the last seen snapshot.
// The payload has no version field; an incompatible format needs a new key.
const HistoryKey = "CHAT_HISTORY_GLOBAL"

// Store persists the message snapshot. It is best effort: failures are
// logged and swallowed, and nothing is retried.
type Store struct {
	kv     KeyValue
	logger zerolog.Logger

	mu      sync.Mutex
	issued  uint64
	written uint64
}

// NewStore builds a snapshot store over kv.
func NewStore(kv KeyValue, logger zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// NextVersion hands out a stamp for SaveVersion. Stamps increase strictly.
func (s *Store) NextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Save overwrites the cached snapshot.
func (s *Store) Save(ctx context.Context, snapshot []models.ChatMessage) {
	s.SaveVersion(ctx, s.NextVersion(), snapshot)
}

// SaveVersion overwrites the cached snapshot unless a write with a newer
// stamp already landed. Writes are serialized, so an older snapshot can
// never replace a newer one.
func (s *Store) SaveVersion(ctx context.Context, version uint64, snapshot []models.ChatMessage) {
	if snapshot == nil {
		snapshot = []models.ChatMessage{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode chat history")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if version <= s.written {
		s.logger.Debug().Uint64("version", version).Uint64("written", s.written).Msg("skipping stale chat history write")
		return
	}

	if err := s.kv.SetItem(ctx, HistoryKey, string(data)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save chat history")
		return
	}
	s.written = version
}

// Load returns the cached snapshot. ok is false when nothing is cached or
// the stored value cannot be read; an empty history loads as ok.
func (s *Store) Load(ctx context.Context) (snapshot []models.ChatMessage, ok bool) {
	raw, found, err := s.kv.GetItem(ctx, HistoryKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read chat history")
		return nil, false
	}
	if !found {
		return nil, false
	}

	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode chat history")
		return nil, false
	}
	if snapshot == nil {
		// a literal "null" carries nothing
		return nil, false
	}
	return snapshot, true
}
