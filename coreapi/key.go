package coreapi

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/ipfshttp/rpc"
)

// KeyAPI manages the node's named keys. Key material never leaves the node.
type KeyAPI struct{ c *Client }

// Key is a named key and the peer id derived from it.
type Key struct {
	Name string
	ID   peer.ID
}

type wireKey struct {
	Name string
	ID   string `json:"Id"`
}

func (w wireKey) key(command string) (Key, error) {
	id, err := decodePeer(command, w.ID)
	if err != nil {
		return Key{}, err
	}
	return Key{Name: w.Name, ID: id}, nil
}

// Create generates a key. keyType is "rsa" or "ed25519"; size is only used
// for rsa and zero picks the node's default.
func (k KeyAPI) Create(ctx context.Context, name, keyType string, size int) (*Key, error) {
	req := k.c.rpc.Request("key/gen", name).Option("type", keyType)
	if size > 0 {
		req.Option("size", size)
	}
	var out wireKey
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	key, err := out.key("key/gen")
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// List returns every key, including "self".
func (k KeyAPI) List(ctx context.Context) ([]Key, error) {
	var out struct{ Keys []wireKey }
	if err := k.c.rpc.Request("key/list").Option("l", true).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return toKeys("key/list", out.Keys)
}

// Remove deletes the named key and returns it, or nil if nothing was
// removed.
func (k KeyAPI) Remove(ctx context.Context, name string) (*Key, error) {
	var out struct{ Keys []wireKey }
	if err := k.c.rpc.Request("key/rm", name).Exec(ctx, &out); err != nil {
		return nil, err
	}
	keys, err := toKeys("key/rm", out.Keys)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	return &keys[0], nil
}

// Rename is not supported by this client.
func (k KeyAPI) Rename(ctx context.Context, oldName, newName string) (*Key, error) {
	return nil, rpc.NotImplemented("key/rename")
}

// Import is not supported by this client.
func (k KeyAPI) Import(ctx context.Context, name string, pem []byte, password string) (*Key, error) {
	return nil, rpc.NotImplemented("key/import")
}

// Export is not supported by this client.
func (k KeyAPI) Export(ctx context.Context, name, password string) ([]byte, error) {
	return nil, rpc.NotImplemented("key/export")
}

func toKeys(command string, ws []wireKey) ([]Key, error) {
	out := make([]Key, 0, len(ws))
	for _, w := range ws {
		key, err := w.key(command)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}
