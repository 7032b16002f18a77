// Package coreapi exposes the node's RPC commands as typed Go calls, grouped
// the way the node groups them: Block, Object, Pin, PubSub, Swarm and so on.
//
// Every call blocks until the node answers and honors ctx. Run calls in
// goroutines for concurrency; the Client is safe for concurrent use.
package coreapi

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/unixfs"
)

var (
	// ErrNilPeer is returned when a nil address is added to or removed from
	// the bootstrap list. No request is made.
	ErrNilPeer = errors.New("coreapi: nil peer address")
)

// Client is the entry point to the typed API.
type Client struct {
	rpc    *rpc.Client
	logger *slog.Logger

	trusted *TrustedPeers
}

// New wraps an rpc client. A nil rc uses rpc.New() defaults.
func New(rc *rpc.Client, logger *slog.Logger) *Client {
	if rc == nil {
		rc = rpc.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{rpc: rc, logger: logger}
	c.trusted = &TrustedPeers{bootstrap: c.Bootstrap()}
	return c
}

// RPC returns the underlying transport.
func (c *Client) RPC() *rpc.Client { return c.rpc }

func (c *Client) Block() BlockAPI           { return BlockAPI{c} }
func (c *Client) Object() ObjectAPI         { return ObjectAPI{c} }
func (c *Client) Pin() PinAPI               { return PinAPI{c} }
func (c *Client) PubSub() PubSubAPI         { return PubSubAPI{c} }
func (c *Client) Swarm() SwarmAPI           { return SwarmAPI{c} }
func (c *Client) Bootstrap() BootstrapAPI   { return BootstrapAPI{c} }
func (c *Client) Name() NameAPI             { return NameAPI{c} }
func (c *Client) Key() KeyAPI               { return KeyAPI{c} }
func (c *Client) Dag() DagAPI               { return DagAPI{c} }
func (c *Client) Dht() DhtAPI               { return DhtAPI{c} }
func (c *Client) FileSystem() FileSystemAPI { return FileSystemAPI{c} }
func (c *Client) Generic() GenericAPI       { return GenericAPI{c} }
func (c *Client) Config() ConfigAPI         { return ConfigAPI{c} }
func (c *Client) Bitswap() BitswapAPI       { return BitswapAPI{c} }
func (c *Client) Stats() StatsAPI           { return StatsAPI{c} }
func (c *Client) Dns() DnsAPI               { return DnsAPI{c} }
func (c *Client) Repo() RepoAPI             { return RepoAPI{c} }

// TrustedPeers is the client's view of the node's bootstrap list.
func (c *Client) TrustedPeers() *TrustedPeers { return c.trusted }

// Node returns a lazy DAG node shell for id. No request is made.
func (c *Client) Node(id cid.Cid) (*merkle.Node, error) {
	return merkle.NewNode(c, id, "")
}

// ParseNode is Node for "<cid>" or "/ipfs/<cid>".
func (c *Client) ParseNode(path string) (*merkle.Node, error) {
	return merkle.ParseNode(c, path, "")
}

// FileNode returns a lazy file shell for id. No request is made.
func (c *Client) FileNode(id cid.Cid) (*unixfs.Node, error) {
	return unixfs.New(c, id, "")
}

// BlockSize implements merkle.Fetcher.
func (c *Client) BlockSize(ctx context.Context, id cid.Cid) (uint64, error) {
	st, err := c.Block().Stat(ctx, id)
	if err != nil {
		return 0, err
	}
	return st.Size, nil
}

// ObjectLinks implements merkle.Fetcher.
func (c *Client) ObjectLinks(ctx context.Context, id cid.Cid) ([]merkle.Link, error) {
	return c.Object().Links(ctx, id)
}

// BlockData implements merkle.Fetcher.
func (c *Client) BlockData(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	return c.Block().GetStream(ctx, id)
}

// ListFile implements unixfs.Fetcher.
func (c *Client) ListFile(ctx context.Context, path string) (*unixfs.Info, error) {
	return c.FileSystem().describe(ctx, path)
}

// ReadFile implements unixfs.Fetcher.
func (c *Client) ReadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.FileSystem().ReadFile(ctx, path)
}

var (
	_ merkle.Fetcher = (*Client)(nil)
	_ unixfs.Fetcher = (*Client)(nil)
)

// wireLink is the {Name, Hash, Size} link shape used by object commands.
type wireLink struct {
	Name string
	Hash string
	Size uint64
}

func (l wireLink) link() (merkle.Link, error) {
	id, err := cid.Decode(l.Hash)
	if err != nil {
		return merkle.Link{}, err
	}
	return merkle.Link{Name: l.Name, Cid: id, Size: l.Size}, nil
}

func decodeCid(command, s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "invalid cid " + s, Cause: err}
	}
	return id, nil
}

// cidRef is the {"/": "<cid>"} shape.
type cidRef struct {
	Cid string `json:"/"`
}
