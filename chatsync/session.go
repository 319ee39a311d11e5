package chatsync

import (
	"context"
	"sync"

	"roomchat/models"
)

// Subscription is an open remote stream.
type Subscription interface {
	Close() error
	// Done is closed when the stream ends, by Close or on its own.
	Done() <-chan struct{}
	// Err reports why the stream ended on its own; nil after Close.
	Err() error
}

// Stream opens remote subscriptions to the ordered message collection.
type Stream interface {
	Subscribe(ctx context.Context, handler func(docs []models.Document)) (Subscription, error)
}

// Session ties one subscription to one reducer for the lifetime of a chat
// screen activation.
type Session struct {
	sub     Subscription
	reducer *Reducer
	once    sync.Once
	err     error
}

// Bind subscribes to stream and routes every snapshot into reducer. If
// subscribing fails the reducer is closed and the error returned.
func Bind(ctx context.Context, stream Stream, reducer *Reducer) (*Session, error) {
	sub, err := stream.Subscribe(ctx, func(docs []models.Document) {
		reducer.Apply(ctx, docs)
	})
	if err != nil {
		reducer.Close()
		return nil, err
	}
	return &Session{sub: sub, reducer: reducer}, nil
}

// Done is closed when the underlying stream ends.
func (s *Session) Done() <-chan struct{} {
	return s.sub.Done()
}

// Err reports why the stream ended on its own.
func (s *Session) Err() error {
	return s.sub.Err()
}

// Close unsubscribes and closes the reducer. Only the first call has any
// effect; later calls return the same result.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.reducer.Close()
		s.err = s.sub.Close()
	})
	return s.err
}
