// Package unixfs models files and directories stored on the node as lazy
// shells. The file view (directory flag, children, logical size) comes from
// the node's file listing command, not from raw DAG links.
package unixfs

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/cidutil"
)

var (
	ErrInvalidCid = errors.New("unixfs: invalid cid")
	ErrEmptyPath  = cidutil.ErrEmptyPath
	ErrNoFetcher  = errors.New("unixfs: node has no fetcher")
)

// Link is a named child entry of a directory.
type Link struct {
	Name        string
	Cid         cid.Cid
	Size        uint64
	IsDirectory bool
}

// Info is one file listing result.
type Info struct {
	IsDirectory bool
	Links       []Link
	// Size is the logical content size, not the encoded block size.
	Size uint64
}

// Fetcher is the remote surface a Node needs. coreapi.Client implements it.
type Fetcher interface {
	ListFile(ctx context.Context, path string) (*Info, error)
	ReadFile(ctx context.Context, path string) (io.ReadCloser, error)
}

// fields is replaced wholesale on every update.
type fields struct {
	name  string
	isDir *bool
	links *[]Link
	size  *uint64
}

// Node is a file or directory on the node. The directory flag, links and
// size may each be set directly. Reading a field that is set never goes to
// the node; reading one that is unset lists the file once and fills in all
// three. Content is never cached.
//
// Node has no identity-based equality; it is a view, not a reference.
type Node struct {
	id    cid.Cid
	fetch Fetcher

	state atomic.Pointer[fields]
}

// New returns a shell for id. No remote call is made.
func New(f Fetcher, id cid.Cid, name string) (*Node, error) {
	if !id.Defined() {
		return nil, ErrInvalidCid
	}
	n := &Node{id: id, fetch: f}
	n.state.Store(&fields{name: name})
	return n, nil
}

// Parse returns a shell for a bare identifier or an "/ipfs/<cid>" path.
func Parse(f Fetcher, path, name string) (*Node, error) {
	id, err := cidutil.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return New(f, id, name)
}

func (n *Node) Cid() cid.Cid { return n.id }

func (n *Node) Name() string { return n.state.Load().name }

// SetName replaces the display name.
func (n *Node) SetName(name string) {
	n.update(func(f *fields) { f.name = name })
}

func (n *Node) SetIsDirectory(v bool) {
	n.update(func(f *fields) { f.isDir = &v })
}

func (n *Node) SetLinks(links []Link) {
	cp := append([]Link{}, links...)
	n.update(func(f *fields) { f.links = &cp })
}

func (n *Node) SetSize(size uint64) {
	n.update(func(f *fields) { f.size = &size })
}

func (n *Node) update(apply func(*fields)) *fields {
	for {
		old := n.state.Load()
		next := *old
		apply(&next)
		if n.state.CompareAndSwap(old, &next) {
			return &next
		}
	}
}

// IsDirectory reports whether the node is a directory.
func (n *Node) IsDirectory(ctx context.Context) (bool, error) {
	if f := n.state.Load(); f.isDir != nil {
		return *f.isDir, nil
	}
	f, err := n.info(ctx)
	if err != nil {
		return false, err
	}
	return *f.isDir, nil
}

// Links returns the directory entries; empty for a file.
func (n *Node) Links(ctx context.Context) ([]Link, error) {
	f := n.state.Load()
	if f.links == nil {
		var err error
		if f, err = n.info(ctx); err != nil {
			return nil, err
		}
	}
	return append([]Link(nil), (*f.links)...), nil
}

// Size is the logical content size.
func (n *Node) Size(ctx context.Context) (uint64, error) {
	if f := n.state.Load(); f.size != nil {
		return *f.size, nil
	}
	f, err := n.info(ctx)
	if err != nil {
		return 0, err
	}
	return *f.size, nil
}

// info lists the file and overwrites all three fields with the answer.
func (n *Node) info(ctx context.Context) (*fields, error) {
	if n.fetch == nil {
		return nil, ErrNoFetcher
	}
	info, err := n.fetch.ListFile(ctx, n.id.String())
	if err != nil {
		return nil, err
	}
	isDir := info.IsDirectory
	links := append([]Link{}, info.Links...)
	size := info.Size
	return n.update(func(f *fields) {
		f.isDir = &isDir
		f.links = &links
		f.size = &size
	}), nil
}

// DataStream reads the file content. The caller must close it.
func (n *Node) DataStream(ctx context.Context) (io.ReadCloser, error) {
	if n.fetch == nil {
		return nil, ErrNoFetcher
	}
	return n.fetch.ReadFile(ctx, n.id.String())
}

// Data reads the whole file content into memory.
func (n *Node) Data(ctx context.Context) ([]byte, error) {
	r, err := n.DataStream(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ToLink snapshots the node as a directory entry. name overrides the
// node's own name when non-empty.
func (n *Node) ToLink(ctx context.Context, name string) (Link, error) {
	f := n.state.Load()
	if f.size == nil || f.isDir == nil {
		var err error
		if f, err = n.info(ctx); err != nil {
			return Link{}, err
		}
	}
	if name == "" {
		name = f.name
	}
	return Link{Name: name, Cid: n.id, Size: *f.size, IsDirectory: *f.isDir}, nil
}

func (n *Node) String() string {
	return cidutil.IPFSPathPrefix + n.id.String()
}
