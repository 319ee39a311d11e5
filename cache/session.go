package cache

import (
	"context"
	"encoding/json"

	"roomchat/models"
)

// SessionKey holds the signed-in identity between runs.
const SessionKey = "AUTH_SESSION"

// SessionStore persists the identity so the next start signs in silently.
type SessionStore struct {
	kv KeyValue
}

// NewSessionStore builds a session store over kv.
func NewSessionStore(kv KeyValue) *SessionStore {
	return &SessionStore{kv: kv}
}

// Save stores the identity.
func (s *SessionStore) Save(ctx context.Context, id models.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.kv.SetItem(ctx, SessionKey, string(data))
}

// Load returns the stored identity, if any.
func (s *SessionStore) Load(ctx context.Context) (*models.Identity, error) {
	raw, ok, err := s.kv.GetItem(ctx, SessionKey)
	if err != nil || !ok {
		return nil, err
	}
	var id models.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Clear forgets the identity.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.kv.RemoveItem(ctx, SessionKey)
}
