package coreapi

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/rpc"
)

// DagAPI is the typed IPLD surface. It is not supported by this client; use
// ObjectAPI for dag-pb nodes.
type DagAPI struct{ c *Client }

// Put is not supported.
func (d DagAPI) Put(ctx context.Context, data json.RawMessage, contentType, multihashType string) (cid.Cid, error) {
	return cid.Undef, rpc.NotImplemented("dag/put")
}

// Get is not supported.
func (d DagAPI) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return nil, rpc.NotImplemented("dag/get")
}
