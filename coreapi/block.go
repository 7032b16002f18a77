package coreapi

import (
	"bytes"
	"context"
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
)

// BlockAPI manages raw blocks.
type BlockAPI struct{ c *Client }

// BlockPutOptions mirror the block/put flags. Zero values use the node's
// defaults: a version 0 identifier with sha2-256.
type BlockPutOptions struct {
	// Format is the content type, e.g. "raw" or "protobuf".
	Format string
	// MultihashType names the hash function, e.g. "sha2-256".
	MultihashType string
	// CidBase names the multibase the node answers with, e.g. "base32".
	CidBase string
	Pin     bool
}

// BlockStat is the result of block/stat.
type BlockStat struct {
	Cid  cid.Cid
	Size uint64
}

// Get fetches a block into memory.
func (b BlockAPI) Get(ctx context.Context, id cid.Cid) (*merkle.Block, error) {
	r, err := b.GetStream(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &rpc.Error{Kind: rpc.KindRequest, Command: "block/get", Cause: err}
	}
	return merkle.NewBlock(id, data), nil
}

// GetStream streams a block. The caller must close it.
func (b BlockAPI) GetStream(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	return b.c.rpc.Request("block/get", id.String()).Download(ctx)
}

// Put stores data as a block and returns the identifier the node assigned.
func (b BlockAPI) Put(ctx context.Context, data []byte, opts BlockPutOptions) (cid.Cid, error) {
	req := b.c.rpc.Request("block/put")
	if opts.Format != "" {
		req.Option("format", opts.Format)
	}
	if opts.MultihashType != "" {
		req.Option("mhtype", opts.MultihashType)
	}
	if opts.CidBase != "" {
		req.Option("cid-base", opts.CidBase)
	}
	if opts.Pin {
		req.Option("pin", true)
	}
	var out struct {
		Key  string
		Size uint64
	}
	if err := req.UploadExec(ctx, bytes.NewReader(data), "", &out); err != nil {
		return cid.Undef, err
	}
	return decodeCid("block/put", out.Key)
}

// Stat returns the block's stored size.
func (b BlockAPI) Stat(ctx context.Context, id cid.Cid) (*BlockStat, error) {
	var out struct {
		Key  string
		Size uint64
	}
	if err := b.c.rpc.Request("block/stat", id.String()).Exec(ctx, &out); err != nil {
		return nil, err
	}
	key, err := decodeCid("block/stat", out.Key)
	if err != nil {
		return nil, err
	}
	return &BlockStat{Cid: key, Size: out.Size}, nil
}

// Remove deletes a block. With ignoreNonexistent a missing block is not an
// error and cid.Undef is returned.
func (b BlockAPI) Remove(ctx context.Context, id cid.Cid, ignoreNonexistent bool) (cid.Cid, error) {
	const command = "block/rm"
	var out struct {
		Hash  string
		Error string
	}
	err := b.c.rpc.Request(command, id.String()).
		Option("force", ignoreNonexistent).
		Exec(ctx, &out)
	if err != nil {
		return cid.Undef, err
	}
	if out.Error != "" {
		return cid.Undef, &rpc.Error{Kind: rpc.KindRequest, Command: command, Message: out.Error}
	}
	if out.Hash == "" {
		return cid.Undef, nil
	}
	return decodeCid(command, out.Hash)
}
