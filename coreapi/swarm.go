package coreapi

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/tidwall/gjson"

	"xdao.co/ipfshttp/rpc"
)

// SwarmAPI manages the node's peer connections.
type SwarmAPI struct{ c *Client }

// ConnectedPeer is one entry of swarm/peers.
type ConnectedPeer struct {
	ID      peer.ID
	Addr    ma.Multiaddr
	Latency time.Duration
}

// Addresses returns the known addresses of every known peer.
func (s SwarmAPI) Addresses(ctx context.Context) (map[peer.ID][]ma.Multiaddr, error) {
	const command = "swarm/addrs"
	var out struct {
		Addrs map[string][]string
	}
	if err := s.c.rpc.Request(command).Exec(ctx, &out); err != nil {
		return nil, err
	}
	res := make(map[peer.ID][]ma.Multiaddr, len(out.Addrs))
	for k, addrs := range out.Addrs {
		id, err := decodePeer(command, k)
		if err != nil {
			return nil, err
		}
		mas, err := decodeAddrs(command, addrs)
		if err != nil {
			return nil, err
		}
		res[id] = mas
	}
	return res, nil
}

// Peers lists connected peers. Older nodes answer with {"Strings": [...]}
// of "<addr>/ipfs/<id>"; newer ones with {"Peers": [{Addr, Peer, Latency}]}.
// Any other shape is a format error.
func (s SwarmAPI) Peers(ctx context.Context) ([]ConnectedPeer, error) {
	const command = "swarm/peers"
	body, err := s.c.rpc.Request(command).Text(ctx)
	if err != nil {
		return nil, err
	}
	doc := gjson.Parse(body)
	var peers []ConnectedPeer
	switch {
	case doc.Get("Strings").Exists():
		for _, v := range doc.Get("Strings").Array() {
			p, err := legacyPeer(command, v.String())
			if err != nil {
				return nil, err
			}
			peers = append(peers, p)
		}
	case doc.Get("Peers").Exists():
		var out struct {
			Peers []struct {
				Addr    string
				Peer    string
				Latency string
			}
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			return nil, rpc.FormatError(command, "decode peers: "+err.Error())
		}
		for _, w := range out.Peers {
			id, err := decodePeer(command, w.Peer)
			if err != nil {
				return nil, err
			}
			addr, err := decodeAddr(command, w.Addr)
			if err != nil {
				return nil, err
			}
			p := ConnectedPeer{ID: id, Addr: addr}
			if w.Latency != "" && w.Latency != "n/a" {
				p.Latency, _ = time.ParseDuration(w.Latency)
			}
			peers = append(peers, p)
		}
	default:
		return nil, rpc.FormatError(command, "unknown swarm peers response: "+truncate(body, 80))
	}
	return peers, nil
}

func legacyPeer(command, s string) (ConnectedPeer, error) {
	full, err := decodeAddr(command, s)
	if err != nil {
		return ConnectedPeer{}, err
	}
	info, err := peer.AddrInfoFromP2pAddr(full)
	if err != nil {
		return ConnectedPeer{}, rpc.FormatError(command, "peer address without id: "+s)
	}
	p := ConnectedPeer{ID: info.ID}
	if len(info.Addrs) > 0 {
		p.Addr = info.Addrs[0]
	}
	return p, nil
}

// Connect dials addr, which must include the peer id.
func (s SwarmAPI) Connect(ctx context.Context, addr ma.Multiaddr) error {
	if addr == nil {
		return ErrNilPeer
	}
	return s.c.rpc.Request("swarm/connect", addr.String()).Exec(ctx, nil)
}

// Disconnect closes connections to addr.
func (s SwarmAPI) Disconnect(ctx context.Context, addr ma.Multiaddr) error {
	if addr == nil {
		return ErrNilPeer
	}
	return s.c.rpc.Request("swarm/disconnect", addr.String()).Exec(ctx, nil)
}

// AddAddressFilter stops the node dialing addresses matching filter, e.g.
// "/ip4/10.0.0.0/ipcidr/8". persist also writes it to the node's config.
func (s SwarmAPI) AddAddressFilter(ctx context.Context, filter ma.Multiaddr, persist bool) (ma.Multiaddr, error) {
	return s.filterCommand(ctx, "swarm/filters/add", filter, persist)
}

// RemoveAddressFilter undoes AddAddressFilter. It returns nil when filter was
// not present.
func (s SwarmAPI) RemoveAddressFilter(ctx context.Context, filter ma.Multiaddr, persist bool) (ma.Multiaddr, error) {
	return s.filterCommand(ctx, "swarm/filters/rm", filter, persist)
}

func (s SwarmAPI) filterCommand(ctx context.Context, command string, filter ma.Multiaddr, persist bool) (ma.Multiaddr, error) {
	if filter == nil {
		return nil, ErrNilPeer
	}
	var out struct{ Strings []string }
	err := s.c.rpc.Request(command, filter.String()).Option("persist", persist).Exec(ctx, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Strings) == 0 {
		return nil, nil
	}
	return decodeAddr(command, out.Strings[0])
}

// ListAddressFilters returns the active filters.
func (s SwarmAPI) ListAddressFilters(ctx context.Context, persist bool) ([]ma.Multiaddr, error) {
	const command = "swarm/filters"
	var out struct{ Strings []string }
	if err := s.c.rpc.Request(command).Option("persist", persist).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return decodeAddrs(command, out.Strings)
}

func decodePeer(command, s string) (peer.ID, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return "", &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "invalid peer id " + s, Cause: err}
	}
	return id, nil
}

func decodePeers(command string, ss []string) ([]peer.ID, error) {
	out := make([]peer.ID, 0, len(ss))
	for _, s := range ss {
		id, err := decodePeer(command, s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func decodeAddr(command, s string) (ma.Multiaddr, error) {
	a, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "invalid multiaddr " + s, Cause: err}
	}
	return a, nil
}

func decodeAddrs(command string, ss []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(ss))
	for _, s := range ss {
		a, err := decodeAddr(command, s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
