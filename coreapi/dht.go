package coreapi

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/ipfshttp/rpc"
)

// DhtAPI queries the node's routing table.
type DhtAPI struct{ c *Client }

// Routing query event types, as reported by the node.
const (
	eventFinalPeer = 2
	eventProvider  = 4
)

type routingEvent struct {
	Type      int
	Responses []struct {
		ID    string
		Addrs []string
	}
}

// FindPeer looks up the addresses of id.
func (d DhtAPI) FindPeer(ctx context.Context, id peer.ID) (*peer.AddrInfo, error) {
	const command = "dht/findpeer"
	var found *peer.AddrInfo
	err := d.c.rpc.Request(command, id.String()).Stream(ctx, func(line json.RawMessage) error {
		infos, err := decodeEvent(command, line, eventFinalPeer)
		if err != nil || len(infos) == 0 {
			return err
		}
		found = &infos[0]
		return rpc.ErrStopStream
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &rpc.Error{Kind: rpc.KindRequest, Command: command, Message: "peer not found: " + id.String()}
	}
	return found, nil
}

// FindProviders returns up to limit peers that can provide id. A limit of
// zero uses the node's default of 20.
func (d DhtAPI) FindProviders(ctx context.Context, id cid.Cid, limit int) ([]peer.AddrInfo, error) {
	const command = "dht/findprovs"
	if limit <= 0 {
		limit = 20
	}
	var providers []peer.AddrInfo
	err := d.c.rpc.Request(command, id.String()).
		Option("num-providers", limit).
		Stream(ctx, func(line json.RawMessage) error {
			infos, err := decodeEvent(command, line, eventProvider)
			if err != nil {
				return err
			}
			providers = append(providers, infos...)
			if len(providers) >= limit {
				providers = providers[:limit]
				return rpc.ErrStopStream
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func decodeEvent(command string, line json.RawMessage, want int) ([]peer.AddrInfo, error) {
	var ev routingEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "decode event", Cause: err}
	}
	if ev.Type != want {
		return nil, nil
	}
	out := make([]peer.AddrInfo, 0, len(ev.Responses))
	for _, r := range ev.Responses {
		id, err := decodePeer(command, r.ID)
		if err != nil {
			return nil, err
		}
		addrs, err := decodeAddrs(command, r.Addrs)
		if err != nil {
			return nil, err
		}
		out = append(out, peer.AddrInfo{ID: id, Addrs: addrs})
	}
	return out, nil
}

// Get is not supported.
func (d DhtAPI) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, rpc.NotImplemented("dht/get")
}

// Put is not supported.
func (d DhtAPI) Put(ctx context.Context, key string, value []byte) error {
	return rpc.NotImplemented("dht/put")
}
