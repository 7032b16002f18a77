package coreapi

import (
	"context"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
)

// BootstrapAPI manages the peers the node dials at startup.
type BootstrapAPI struct{ c *Client }

// Add appends addr and returns what the node actually added.
func (b BootstrapAPI) Add(ctx context.Context, addr ma.Multiaddr) (ma.Multiaddr, error) {
	if addr == nil {
		return nil, ErrNilPeer
	}
	peers, err := b.peers(ctx, "bootstrap/add", addr.String())
	if err != nil || len(peers) == 0 {
		return nil, err
	}
	return peers[0], nil
}

// AddDefaults restores the node's built-in list.
func (b BootstrapAPI) AddDefaults(ctx context.Context) ([]ma.Multiaddr, error) {
	return b.peers(ctx, "bootstrap/add/default")
}

// List returns the current list.
func (b BootstrapAPI) List(ctx context.Context) ([]ma.Multiaddr, error) {
	return b.peers(ctx, "bootstrap/list")
}

// Remove drops addr and returns what the node actually removed.
func (b BootstrapAPI) Remove(ctx context.Context, addr ma.Multiaddr) (ma.Multiaddr, error) {
	if addr == nil {
		return nil, ErrNilPeer
	}
	peers, err := b.peers(ctx, "bootstrap/rm", addr.String())
	if err != nil || len(peers) == 0 {
		return nil, err
	}
	return peers[0], nil
}

// RemoveAll empties the list.
func (b BootstrapAPI) RemoveAll(ctx context.Context) ([]ma.Multiaddr, error) {
	return b.peers(ctx, "bootstrap/rm/all")
}

func (b BootstrapAPI) peers(ctx context.Context, command string, args ...string) ([]ma.Multiaddr, error) {
	var out struct{ Peers []string }
	if err := b.c.rpc.Request(command, args...).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return decodeAddrs(command, out.Peers)
}

// TrustedPeers is a set-like view of the bootstrap list.
//
// Reads are served from a cached copy of the list, fetched on first use.
// Every mutation goes to the node and then drops the cache rather than
// patching it, so the next read sees the node's own answer.
type TrustedPeers struct {
	bootstrap BootstrapAPI

	mu    sync.Mutex
	cache []ma.Multiaddr
	// gen counts invalidations; a list answer is cached only if no
	// mutation happened while it was in flight.
	gen uint64
}

// Add adds addr to the list.
func (t *TrustedPeers) Add(ctx context.Context, addr ma.Multiaddr) error {
	if addr == nil {
		return ErrNilPeer
	}
	defer t.invalidate()
	_, err := t.bootstrap.Add(ctx, addr)
	return err
}

// AddDefaults restores the node's default peers.
func (t *TrustedPeers) AddDefaults(ctx context.Context) error {
	defer t.invalidate()
	_, err := t.bootstrap.AddDefaults(ctx)
	return err
}

// Remove drops addr from the list.
func (t *TrustedPeers) Remove(ctx context.Context, addr ma.Multiaddr) error {
	if addr == nil {
		return ErrNilPeer
	}
	defer t.invalidate()
	_, err := t.bootstrap.Remove(ctx, addr)
	return err
}

// Clear empties the list.
func (t *TrustedPeers) Clear(ctx context.Context) error {
	defer t.invalidate()
	_, err := t.bootstrap.RemoveAll(ctx)
	return err
}

// Len returns the number of peers.
func (t *TrustedPeers) Len(ctx context.Context) (int, error) {
	peers, err := t.fetch(ctx)
	return len(peers), err
}

// Contains reports whether addr is on the list.
func (t *TrustedPeers) Contains(ctx context.Context, addr ma.Multiaddr) (bool, error) {
	if addr == nil {
		return false, nil
	}
	peers, err := t.fetch(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		if p.Equal(addr) {
			return true, nil
		}
	}
	return false, nil
}

// List returns a copy of the peers.
func (t *TrustedPeers) List(ctx context.Context) ([]ma.Multiaddr, error) {
	peers, err := t.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return append([]ma.Multiaddr(nil), peers...), nil
}

func (t *TrustedPeers) fetch(ctx context.Context) ([]ma.Multiaddr, error) {
	t.mu.Lock()
	cached, gen := t.cache, t.gen
	t.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	peers, err := t.bootstrap.List(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.gen == gen {
		t.cache = peers
	}
	t.mu.Unlock()
	return peers, nil
}

func (t *TrustedPeers) invalidate() {
	t.mu.Lock()
	t.cache = nil
	t.gen++
	t.mu.Unlock()
}
