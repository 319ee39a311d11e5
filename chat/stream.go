package chat

import (
	"context"

	"roomchat/chatsync"
	"roomchat/client"
	"roomchat/models"
)

// RemoteStream exposes a client's realtime subscription as a sync stream.
type RemoteStream struct {
	Client *client.Client
}

var _ chatsync.Stream = RemoteStream{}

func (s RemoteStream) Subscribe(ctx context.Context, handler func(docs []models.Document)) (chatsync.Subscription, error) {
	sub, err := s.Client.Subscribe(ctx, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
