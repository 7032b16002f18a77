package coreapi

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/ipfshttp/pubsub"
)

// PubSubAPI publishes to and listens on topics.
type PubSubAPI struct{ c *Client }

// SubscribedTopics lists the topics the node is subscribed to.
func (p PubSubAPI) SubscribedTopics(ctx context.Context) ([]string, error) {
	var out struct{ Strings []string }
	if err := p.c.rpc.Request("pubsub/ls").Exec(ctx, &out); err != nil {
		return nil, err
	}
	return out.Strings, nil
}

// Peers lists peers the node shares topic with. An empty topic means any.
func (p PubSubAPI) Peers(ctx context.Context, topic string) ([]peer.ID, error) {
	req := p.c.rpc.Request("pubsub/peers")
	if topic != "" {
		req = p.c.rpc.Request("pubsub/peers", topic)
	}
	var out struct{ Strings []string }
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	return decodePeers("pubsub/peers", out.Strings)
}

// Publish sends message on topic.
func (p PubSubAPI) Publish(ctx context.Context, topic, message string) error {
	return p.c.rpc.Request("pubsub/pub", topic, message).Exec(ctx, nil)
}

// Subscribe starts listening on topic and returns once the node has
// accepted the subscription. handler runs on the listener's goroutine until
// ctx is cancelled, the Subscription is closed, or the node ends the stream.
func (p PubSubAPI) Subscribe(ctx context.Context, topic string, handler pubsub.Handler) (*pubsub.Subscription, error) {
	body, err := p.c.rpc.Request("pubsub/sub", topic).Send(ctx)
	if err != nil {
		return nil, err
	}
	return pubsub.Listen(ctx, topic, body, handler, p.c.logger), nil
}
