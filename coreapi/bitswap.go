package coreapi

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
)

// BitswapAPI inspects the node's block exchange.
type BitswapAPI struct{ c *Client }

// Ledger is the exchange balance with one peer.
type Ledger struct {
	Peer      peer.ID
	Value     float64
	Sent      uint64
	Recv      uint64
	Exchanged uint64
}

// Wantlist returns the blocks wanted by the node, or by p when not empty.
func (b BitswapAPI) Wantlist(ctx context.Context, p peer.ID) ([]cid.Cid, error) {
	const command = "bitswap/wantlist"
	req := b.c.rpc.Request(command)
	if p != "" {
		req.Option("peer", p.String())
	}
	var out struct{ Keys []cidRef }
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	ids := make([]cid.Cid, 0, len(out.Keys))
	for _, k := range out.Keys {
		id, err := decodeCid(command, k.Cid)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Unwant removes id from the node's wantlist.
func (b BitswapAPI) Unwant(ctx context.Context, id cid.Cid) error {
	return b.c.rpc.Request("bitswap/unwant", id.String()).Exec(ctx, nil)
}

// Ledger returns the exchange balance with p.
func (b BitswapAPI) Ledger(ctx context.Context, p peer.ID) (*Ledger, error) {
	var out struct {
		Peer      string
		Value     float64
		Sent      uint64
		Recv      uint64
		Exchanged uint64
	}
	if err := b.c.rpc.Request("bitswap/ledger", p.String()).Exec(ctx, &out); err != nil {
		return nil, err
	}
	id, err := decodePeer("bitswap/ledger", out.Peer)
	if err != nil {
		return nil, err
	}
	return &Ledger{Peer: id, Value: out.Value, Sent: out.Sent, Recv: out.Recv, Exchanged: out.Exchanged}, nil
}
