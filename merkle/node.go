package merkle

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/cidutil"
)

// Fetcher is the remote surface a lazy Node needs. coreapi.Client
// implements it.
type Fetcher interface {
	// BlockSize returns the raw (encoded) size of the block.
	BlockSize(ctx context.Context, id cid.Cid) (uint64, error)
	// ObjectLinks returns the links of the DAG node.
	ObjectLinks(ctx context.Context, id cid.Cid) ([]Link, error)
	// BlockData streams the raw block bytes.
	BlockData(ctx context.Context, id cid.Cid) (io.ReadCloser, error)
}

// Node is a lazy, remote-backed shell around a DAG node. Constructing one
// makes no remote call. The block size and links are fetched on first use
// and cached for the life of the shell; content under an identifier never
// changes, so a cached value is never invalidated. The payload is fetched
// afresh on every call and never held.
//
// Two shells are equal when their identifiers are equal, whatever each has
// cached. Use Cid() as the map key.
//
// Concurrent first reads of the same field may each go to the node. Both
// results are identical and the last store wins, so the only cost is the
// redundant round trip.
type Node struct {
	id    cid.Cid
	name  string
	fetch Fetcher

	blockSize atomic.Pointer[uint64]
	links     atomic.Pointer[[]Link]
}

// NewNode returns a shell for id. name may be empty.
func NewNode(f Fetcher, id cid.Cid, name string) (*Node, error) {
	if !id.Defined() {
		return nil, ErrInvalidCid
	}
	return &Node{id: id, name: name, fetch: f}, nil
}

// ParseNode returns a shell for a bare identifier or an "/ipfs/<cid>" path.
func ParseNode(f Fetcher, path, name string) (*Node, error) {
	id, err := cidutil.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return NewNode(f, id, name)
}

// NodeFromLink returns a shell whose name and block size come from link, so
// reading the size never goes to the node.
func NodeFromLink(f Fetcher, link Link) (*Node, error) {
	n, err := NewNode(f, link.Cid, link.Name)
	if err != nil {
		return nil, err
	}
	size := link.Size
	n.blockSize.Store(&size)
	return n, nil
}

func (n *Node) Cid() cid.Cid { return n.id }

func (n *Node) Name() string { return n.name }

// BlockSize is the raw block size, fetched once.
func (n *Node) BlockSize(ctx context.Context) (uint64, error) {
	if p := n.blockSize.Load(); p != nil {
		return *p, nil
	}
	if n.fetch == nil {
		return 0, ErrNoFetcher
	}
	size, err := n.fetch.BlockSize(ctx, n.id)
	if err != nil {
		return 0, err
	}
	n.blockSize.Store(&size)
	return size, nil
}

// Size is an alias of BlockSize.
func (n *Node) Size(ctx context.Context) (uint64, error) {
	return n.BlockSize(ctx)
}

// Links returns the node's links in name order, fetched once.
func (n *Node) Links(ctx context.Context) ([]Link, error) {
	if p := n.links.Load(); p != nil {
		return append([]Link(nil), (*p)...), nil
	}
	if n.fetch == nil {
		return nil, ErrNoFetcher
	}
	links, err := n.fetch.ObjectLinks(ctx, n.id)
	if err != nil {
		return nil, err
	}
	links = sortedCopy(links)
	if links == nil {
		links = []Link{}
	}
	n.links.Store(&links)
	return append([]Link(nil), links...), nil
}

// Children returns a shell per link. The shells know their size already.
func (n *Node) Children(ctx context.Context) ([]*Node, error) {
	links, err := n.Links(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0, len(links))
	for _, l := range links {
		child, err := NodeFromLink(n.fetch, l)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// DataStream fetches the raw block. The caller must close it.
func (n *Node) DataStream(ctx context.Context) (io.ReadCloser, error) {
	if n.fetch == nil {
		return nil, ErrNoFetcher
	}
	return n.fetch.BlockData(ctx, n.id)
}

// Data fetches the raw block into memory.
func (n *Node) Data(ctx context.Context) ([]byte, error) {
	r, err := n.DataStream(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ToLink returns a link to this node. name overrides the shell's own name
// when non-empty. This fetches the block size if it is not cached yet.
func (n *Node) ToLink(ctx context.Context, name string) (Link, error) {
	size, err := n.BlockSize(ctx)
	if err != nil {
		return Link{}, err
	}
	if name == "" {
		name = n.name
	}
	return Link{Name: name, Cid: n.id, Size: size}, nil
}

// Equal reports whether n and o reference the same identifier. A nil shell
// equals only another nil shell.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == nil && o == nil
	}
	return n.id.Equals(o.id)
}

// String renders the node as an IPFS path.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	return cidutil.IPFSPathPrefix + n.id.String()
}
