package coreapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
)

// ObjectAPI reads and writes dag-pb nodes.
type ObjectAPI struct{ c *Client }

// ObjectStat is the result of object/stat.
type ObjectStat struct {
	LinkCount      int
	LinkSize       uint64
	BlockSize      uint64
	DataSize       uint64
	CumulativeSize uint64
}

// New creates a node from a template ("" or "unixfs-dir") and fetches it.
func (o ObjectAPI) New(ctx context.Context, template string) (*merkle.DagNode, error) {
	req := o.c.rpc.Request("object/new")
	if template != "" {
		req = o.c.rpc.Request("object/new", template)
	}
	var out struct{ Hash string }
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	id, err := decodeCid("object/new", out.Hash)
	if err != nil {
		return nil, err
	}
	return o.Get(ctx, id)
}

// NewDirectory creates an empty unixfs directory node.
func (o ObjectAPI) NewDirectory(ctx context.Context) (*merkle.DagNode, error) {
	return o.New(ctx, "unixfs-dir")
}

// Get fetches a node. The payload is requested base64 encoded so that
// arbitrary bytes survive the JSON document.
func (o ObjectAPI) Get(ctx context.Context, id cid.Cid) (*merkle.DagNode, error) {
	const command = "object/get"
	var out struct {
		Data  string
		Links []wireLink
	}
	err := o.c.rpc.Request(command, id.String()).
		Option("data-encoding", "base64").
		Exec(ctx, &out)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "decode data", Cause: err}
	}
	links, err := toLinks(command, out.Links)
	if err != nil {
		return nil, err
	}
	return merkle.NewDagNode(data, links), nil
}

// Put stores node and returns it unchanged. The stored identifier is the one
// the remote assigns; a disagreement with the local encoding is logged.
func (o ObjectAPI) Put(ctx context.Context, node *merkle.DagNode) (*merkle.DagNode, error) {
	var out struct{ Hash string }
	err := o.c.rpc.Request("object/put").
		Option("inputenc", "protobuf").
		UploadExec(ctx, bytes.NewReader(node.Encode()), "", &out)
	if err != nil {
		return nil, err
	}
	got, err := decodeCid("object/put", out.Hash)
	if err != nil {
		return nil, err
	}
	if !got.Equals(node.Cid()) {
		o.c.logger.WarnContext(ctx, "object stored under a different identifier",
			"stored", got.String(), "local", node.Cid().String())
	}
	return node, nil
}

// Data streams a node's payload. The caller must close it.
func (o ObjectAPI) Data(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	return o.c.rpc.Request("object/data", id.String()).Send(ctx)
}

// Links fetches only a node's links.
func (o ObjectAPI) Links(ctx context.Context, id cid.Cid) ([]merkle.Link, error) {
	const command = "object/links"
	var out struct {
		Hash  string
		Links []wireLink
	}
	if err := o.c.rpc.Request(command, id.String()).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return toLinks(command, out.Links)
}

// Stat fetches size statistics for a node.
func (o ObjectAPI) Stat(ctx context.Context, id cid.Cid) (*ObjectStat, error) {
	var out struct {
		NumLinks       int
		BlockSize      uint64
		LinksSize      uint64
		DataSize       uint64
		CumulativeSize uint64
	}
	if err := o.c.rpc.Request("object/stat", id.String()).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return &ObjectStat{
		LinkCount:      out.NumLinks,
		LinkSize:       out.LinksSize,
		BlockSize:      out.BlockSize,
		DataSize:       out.DataSize,
		CumulativeSize: out.CumulativeSize,
	}, nil
}

func toLinks(command string, wl []wireLink) ([]merkle.Link, error) {
	links := make([]merkle.Link, 0, len(wl))
	for _, w := range wl {
		l, err := w.link()
		if err != nil {
			return nil, &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "invalid link " + w.Hash, Cause: err}
		}
		links = append(links, l)
	}
	merkle.SortLinks(links)
	return links, nil
}
