package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent and returns the CIDv1 (raw, sha2-256) of the bytes.
// - Stored objects MUST be immutable.
// - Get MUST verify the bytes against the requested CID's own prefix, so
//   blocks addressed by other versions or codecs round-trip unchanged.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// BlockStore is a CAS that also accepts blocks under an identifier chosen
// by the caller, such as the dag-pb nodes of an exported DAG. The bytes
// must hash to id.
type BlockStore interface {
	CAS
	PutBlock(ctx context.Context, id cid.Cid, data []byte) error
}
