package merkle

import (
	"bytes"
	"io"

	"github.com/ipfs/go-cid"
)

// Block is a raw chunk as fetched from, or about to be stored on, the node.
type Block struct {
	id    cid.Cid
	data  []byte
	size  uint64
	sized bool
}

// NewBlock wraps data under id. data is not copied.
func NewBlock(id cid.Cid, data []byte) *Block {
	return &Block{id: id, data: data}
}

// WithSize returns a copy whose Size reports n instead of len(Data()).
// The node's stat command reports the encoded size, which for some codecs
// differs from the decoded payload length.
func (b *Block) WithSize(n uint64) *Block {
	c := *b
	c.size = n
	c.sized = true
	return &c
}

func (b *Block) Cid() cid.Cid { return b.id }

// Data returns the payload. Callers must not modify it.
func (b *Block) Data() []byte { return b.data }

func (b *Block) DataStream() io.Reader { return bytes.NewReader(b.data) }

func (b *Block) Size() uint64 {
	if b.sized {
		return b.size
	}
	return uint64(len(b.data))
}
