package coreapi

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// GenericAPI holds node-level commands.
type GenericAPI struct{ c *Client }

// PeerInfo describes a peer as reported by id.
type PeerInfo struct {
	ID              peer.ID
	PublicKey       string
	Addresses       []ma.Multiaddr
	AgentVersion    string
	ProtocolVersion string
}

// Version is the node's build information.
type Version struct {
	Version string
	Commit  string
	Repo    string
	System  string
	Golang  string
}

// ID describes the node itself, or p when it is not empty.
func (g GenericAPI) ID(ctx context.Context, p peer.ID) (*PeerInfo, error) {
	const command = "id"
	req := g.c.rpc.Request(command)
	if p != "" {
		req = g.c.rpc.Request(command, p.String())
	}
	var out struct {
		ID              string
		PublicKey       string
		Addresses       []string
		AgentVersion    string
		ProtocolVersion string
	}
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	id, err := decodePeer(command, out.ID)
	if err != nil {
		return nil, err
	}
	addrs, err := decodeAddrs(command, out.Addresses)
	if err != nil {
		return nil, err
	}
	return &PeerInfo{
		ID:              id,
		PublicKey:       out.PublicKey,
		Addresses:       addrs,
		AgentVersion:    out.AgentVersion,
		ProtocolVersion: out.ProtocolVersion,
	}, nil
}

// Version returns the node's build information.
func (g GenericAPI) Version(ctx context.Context) (*Version, error) {
	var out Version
	if err := g.c.rpc.Request("version").Exec(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve resolves an /ipns/ or /ipfs/ name to an /ipfs/ path.
func (g GenericAPI) Resolve(ctx context.Context, name string, recursive bool) (string, error) {
	return resolvePath(ctx, g.c.rpc.Request("resolve", name).Option("recursive", recursive))
}

// Shutdown stops the node.
func (g GenericAPI) Shutdown(ctx context.Context) error {
	return g.c.rpc.Request("shutdown").Exec(ctx, nil)
}

// DnsAPI resolves DNSLink names.
type DnsAPI struct{ c *Client }

// Resolve returns the path a DNSLink domain points at.
func (d DnsAPI) Resolve(ctx context.Context, name string, recursive bool) (string, error) {
	return resolvePath(ctx, d.c.rpc.Request("dns", name).Option("recursive", recursive))
}
