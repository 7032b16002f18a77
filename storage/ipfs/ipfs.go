package ipfs

import (
	"context"
	"errors"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/storage"
)

// CAS stores blocks on a remote node through its RPC API.
//
// Put always asks for CIDv1 (raw, sha2-256) so identifiers match the rest
// of the storage package; reads verify the bytes against the requested
// identifier whatever its version or codec.
type CAS struct {
	blocks coreapi.BlockAPI

	// Pin pins every block written.
	Pin bool
}

var _ storage.BlockStore = (*CAS)(nil)

// New returns a CAS backed by c.
func New(c *coreapi.Client) *CAS {
	return &CAS{blocks: c.Block()}
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	got, err := c.blocks.Put(ctx, data, coreapi.BlockPutOptions{
		Format:        "raw",
		MultihashType: "sha2-256",
		CidBase:       "base32",
		Pin:           c.Pin,
	})
	if err != nil {
		return cid.Undef, err
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) PutBlock(ctx context.Context, id cid.Cid, data []byte) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return storage.ErrCIDMismatch
	}
	opts := coreapi.BlockPutOptions{
		MultihashType: cidutil.MultihashName(id.Prefix().MhType),
		Pin:           c.Pin,
	}
	if id.Version() == 1 {
		switch id.Type() {
		case cid.Raw:
			opts.Format = "raw"
		case cid.DagProtobuf:
			opts.Format = "protobuf"
		case cid.DagCBOR:
			opts.Format = "cbor"
		default:
			return storage.ErrInvalidCID
		}
		opts.CidBase = "base32"
	}
	got, err := c.blocks.Put(ctx, data, opts)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return storage.ErrCIDMismatch
	}
	return nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.blocks.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b.Data()); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b.Data(), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	if _, err := c.blocks.Stat(ctx, id); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isNotFound recognizes the node's missing-block replies. The node reports
// them as plain command failures, so the message is all there is to go on.
func isNotFound(err error) bool {
	var rerr *rpc.Error
	if !errors.As(err, &rerr) || rerr.Kind != rpc.KindRequest {
		return false
	}
	msg := strings.ToLower(rerr.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "blockservice: key not found")
}
