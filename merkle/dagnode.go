package merkle

import (
	"bytes"
	"io"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/cidutil"
)

// DagNode is an immutable dag-pb node: optional payload bytes plus links
// kept in name order.
//
// Its identifier is derived from the canonical encoding; it is the same
// identifier the remote node assigns when the node is stored there.
type DagNode struct {
	data  []byte
	links []Link

	once    sync.Once
	encoded []byte
	id      cid.Cid
}

// NewDagNode copies data and links; links are sorted by name.
func NewDagNode(data []byte, links []Link) *DagNode {
	var d []byte
	if len(data) > 0 {
		d = append([]byte(nil), data...)
	}
	return &DagNode{data: d, links: sortedCopy(links)}
}

// DecodeDagNode parses a dag-pb encoded node.
func DecodeDagNode(b []byte) (*DagNode, error) {
	data, links, err := decodeDagPB(b)
	if err != nil {
		return nil, err
	}
	return NewDagNode(data, links), nil
}

// Data returns the payload. Callers must not modify it.
func (n *DagNode) Data() []byte { return n.data }

// DataStream returns a reader over the payload.
func (n *DagNode) DataStream() io.Reader { return bytes.NewReader(n.data) }

// Links returns a copy of the links in name order.
func (n *DagNode) Links() []Link {
	if len(n.links) == 0 {
		return nil
	}
	return append([]Link(nil), n.links...)
}

// Encode returns the canonical dag-pb bytes.
func (n *DagNode) Encode() []byte {
	n.compute()
	return append([]byte(nil), n.encoded...)
}

// Size is the length of the canonical encoding.
func (n *DagNode) Size() uint64 {
	n.compute()
	return uint64(len(n.encoded))
}

// Cid is the CIDv0 (dag-pb, sha2-256) of the canonical encoding.
func (n *DagNode) Cid() cid.Cid {
	n.compute()
	return n.id
}

// ToLink returns a link to this node named name.
func (n *DagNode) ToLink(name string) Link {
	return Link{Name: name, Cid: n.Cid(), Size: n.Size()}
}

// AddLink returns a new node with link appended.
func (n *DagNode) AddLink(link Link) *DagNode {
	return n.AddLinks(link)
}

// AddLinks returns a new node with links appended.
func (n *DagNode) AddLinks(links ...Link) *DagNode {
	all := make([]Link, 0, len(n.links)+len(links))
	all = append(all, n.links...)
	all = append(all, links...)
	return NewDagNode(n.data, all)
}

// RemoveLink returns a new node without any link pointing at link.Cid.
func (n *DagNode) RemoveLink(link Link) *DagNode {
	return n.RemoveLinks(link)
}

// RemoveLinks returns a new node without any link pointing at one of the
// given links' identifiers.
func (n *DagNode) RemoveLinks(links ...Link) *DagNode {
	drop := make(map[cid.Cid]struct{}, len(links))
	for _, l := range links {
		drop[l.Cid] = struct{}{}
	}
	kept := make([]Link, 0, len(n.links))
	for _, l := range n.links {
		if _, ok := drop[l.Cid]; !ok {
			kept = append(kept, l)
		}
	}
	return NewDagNode(n.data, kept)
}

func (n *DagNode) compute() {
	n.once.Do(func() {
		n.encoded = encodeDagPB(n.data, n.links)
		// sha2-256 over any input cannot fail.
		n.id, _ = cidutil.CIDv0(n.encoded)
	})
}
