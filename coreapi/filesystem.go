package coreapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sourcegraph/conc/pool"

	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/unixfs"
)

// FileSystemAPI adds and reads unixfs files and directories.
type FileSystemAPI struct{ c *Client }

// AddOptions mirror the add flags. The zero value pins, chunks with the
// node's default chunker and produces version 0 identifiers.
type AddOptions struct {
	NoPin             bool
	OnlyHash          bool
	RawLeaves         bool
	Trickle           bool
	WrapWithDirectory bool
	// CidVersion 1 implies raw leaves on the node.
	CidVersion int
	// Hash names the hash function, e.g. "sha2-256".
	Hash string
	// Chunker is e.g. "size-262144" or "rabin".
	Chunker string
	// Progress, when set, receives the running byte count.
	Progress func(bytes uint64)
	// Parallelism bounds concurrent uploads in AddDirectory. Zero uses
	// GOMAXPROCS.
	Parallelism int
}

type addEntry struct {
	Name  string
	Hash  string
	Size  string
	Bytes uint64
}

// Add uploads r as a file named name and returns a shell for it.
func (f FileSystemAPI) Add(ctx context.Context, r io.Reader, name string, opts AddOptions) (*unixfs.Node, error) {
	entry, err := f.add(ctx, r, name, opts)
	if err != nil {
		return nil, err
	}
	id, err := decodeCid("add", entry.Hash)
	if err != nil {
		return nil, err
	}
	n, err := unixfs.New(f.c, id, name)
	if err != nil {
		return nil, err
	}
	if !opts.WrapWithDirectory {
		n.SetIsDirectory(false)
		n.SetLinks(nil)
	}
	return n, nil
}

func (f FileSystemAPI) add(ctx context.Context, r io.Reader, name string, opts AddOptions) (*addEntry, error) {
	const command = "add"
	req := f.c.rpc.Request(command).Option("pin", !opts.NoPin)
	if opts.OnlyHash {
		req.Option("only-hash", true)
	}
	if opts.RawLeaves {
		req.Option("raw-leaves", true)
	}
	if opts.Trickle {
		req.Option("trickle", true)
	}
	if opts.WrapWithDirectory {
		req.Option("wrap-with-directory", true)
	}
	if opts.CidVersion != 0 {
		req.Option("cid-version", opts.CidVersion)
	}
	if opts.Hash != "" {
		req.Option("hash", opts.Hash)
	}
	if opts.Chunker != "" {
		req.Option("chunker", opts.Chunker)
	}
	if opts.Progress != nil {
		req.Option("progress", true)
	}

	body, err := req.Upload(ctx, r, name)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var last *addEntry
	err = rpc.ReadLines(body, func(line json.RawMessage) error {
		var e addEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "decode add entry", Cause: err}
		}
		if e.Hash == "" {
			if opts.Progress != nil {
				opts.Progress(e.Bytes)
			}
			return nil
		}
		last = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, rpc.FormatError(command, "no entry in response")
	}
	return last, nil
}

// AddText adds text as a file.
func (f FileSystemAPI) AddText(ctx context.Context, text string, opts AddOptions) (*unixfs.Node, error) {
	return f.Add(ctx, strings.NewReader(text), "", opts)
}

// AddFile adds the file at path under its base name.
func (f FileSystemAPI) AddFile(ctx context.Context, path string, opts AddOptions) (*unixfs.Node, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return f.Add(ctx, file, filepath.Base(path), opts)
}

// AddDirectory adds every regular file in dir, and with recursive every
// subdirectory, then stores a unixfs directory node linking them. Files are
// uploaded concurrently; Parallelism bounds the uploads in flight across
// the whole tree.
func (f FileSystemAPI) AddDirectory(ctx context.Context, dir string, recursive bool, opts AddOptions) (*unixfs.Node, error) {
	tree, err := scanDir(dir, recursive)
	if err != nil {
		return nil, err
	}
	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	done := make(map[string]*dirLink, len(tree.files))
	files, err := addAll(ctx, workers, tree.files, func(ctx context.Context, path string) (*dirLink, error) {
		return f.addFileLink(ctx, path, opts)
	})
	if err != nil {
		return nil, err
	}
	for i, path := range tree.files {
		done[path] = files[i]
	}
	// Deepest directories first, so every child is stored before its parent.
	for depth := len(tree.levels) - 1; depth >= 0; depth-- {
		level := tree.levels[depth]
		dirs, err := addAll(ctx, workers, level, func(ctx context.Context, d dirEntry) (*dirLink, error) {
			return f.putDirectory(ctx, d, done, opts)
		})
		if err != nil {
			return nil, err
		}
		for i, d := range level {
			done[d.path] = dirs[i]
		}
	}

	link := done[dir]
	n, err := unixfs.New(f.c, link.Cid, link.Name)
	if err != nil {
		return nil, err
	}
	n.SetIsDirectory(true)
	n.SetLinks(link.children)
	n.SetSize(0)
	return n, nil
}

type dirLink struct {
	merkle.Link
	isDir    bool
	children []unixfs.Link
}

type dirEntry struct {
	path     string
	children []string
}

// dirTree is a directory walked breadth first: levels[0] holds the root.
type dirTree struct {
	files  []string
	levels [][]dirEntry
}

func scanDir(root string, recursive bool) (*dirTree, error) {
	t := &dirTree{}
	current := []string{root}
	for len(current) > 0 {
		var level []dirEntry
		var next []string
		for _, dir := range current {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, err
			}
			d := dirEntry{path: dir}
			for _, e := range entries {
				path := filepath.Join(dir, e.Name())
				switch {
				case e.IsDir():
					if !recursive {
						continue
					}
					next = append(next, path)
				case e.Type().IsRegular():
					t.files = append(t.files, path)
				default:
					continue
				}
				d.children = append(d.children, path)
			}
			level = append(level, d)
		}
		t.levels = append(t.levels, level)
		current = next
	}
	return t, nil
}

// addAll runs add over items with at most workers in flight and returns the
// results in item order.
func addAll[T any](ctx context.Context, workers int, items []T, add func(context.Context, T) (*dirLink, error)) ([]*dirLink, error) {
	out := make([]*dirLink, len(items))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(workers)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			l, err := add(ctx, item)
			out[i] = l
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// putDirectory stores the directory node for d. Every child must already be
// in done.
func (f FileSystemAPI) putDirectory(ctx context.Context, d dirEntry, done map[string]*dirLink, opts AddOptions) (*dirLink, error) {
	links := make([]merkle.Link, 0, len(d.children))
	children := make([]unixfs.Link, 0, len(d.children))
	var cumulative uint64
	for _, path := range d.children {
		r := done[path]
		links = append(links, r.Link)
		children = append(children, unixfs.Link{Name: r.Name, Cid: r.Cid, Size: r.Size, IsDirectory: r.isDir})
		cumulative += r.Size
	}
	slices.SortFunc(children, func(a, b unixfs.Link) int { return strings.Compare(a.Name, b.Name) })

	node, err := f.c.Object().NewDirectory(ctx)
	if err != nil {
		return nil, err
	}
	node, err = f.c.Object().Put(ctx, node.AddLinks(links...))
	if err != nil {
		return nil, err
	}
	if !opts.NoPin {
		if _, err := f.c.Pin().Add(ctx, node.Cid().String(), true); err != nil {
			return nil, err
		}
	}
	return &dirLink{
		Link:     merkle.Link{Name: filepath.Base(d.path), Cid: node.Cid(), Size: node.Size() + cumulative},
		isDir:    true,
		children: children,
	}, nil
}

func (f FileSystemAPI) addFileLink(ctx context.Context, path string, opts AddOptions) (*dirLink, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	opts.WrapWithDirectory = false
	e, err := f.add(ctx, file, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}
	id, err := decodeCid("add", e.Hash)
	if err != nil {
		return nil, err
	}
	size, err := strconv.ParseUint(e.Size, 10, 64)
	if err != nil {
		return nil, rpc.FormatError("add", "invalid size "+e.Size)
	}
	return &dirLink{Link: merkle.Link{Name: filepath.Base(path), Cid: id, Size: size}}, nil
}

// ReadFile streams a file's content. The caller must close it.
func (f FileSystemAPI) ReadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return f.c.rpc.Request("cat", path).Send(ctx)
}

// ReadAllText reads a whole file as a string.
func (f FileSystemAPI) ReadAllText(ctx context.Context, path string) (string, error) {
	return f.c.rpc.Request("cat", path).Text(ctx)
}

// ListFile describes the file or directory at path and returns a shell with
// every field already filled in.
func (f FileSystemAPI) ListFile(ctx context.Context, path string) (*unixfs.Node, error) {
	res, err := f.describeWithHash(ctx, path)
	if err != nil {
		return nil, err
	}
	id, err := decodeCid("file/ls", res.hash)
	if err != nil {
		return nil, err
	}
	n, err := unixfs.New(f.c, id, "")
	if err != nil {
		return nil, err
	}
	n.SetIsDirectory(res.IsDirectory)
	n.SetLinks(res.Links)
	n.SetSize(res.Size)
	return n, nil
}

type fileObject struct {
	Hash  string
	Size  uint64
	Type  string
	Links []struct {
		Name string
		Hash string
		Size uint64
		Type string
	}
}

// describeResult carries the resolved hash alongside the unixfs view.
type describeResult struct {
	unixfs.Info
	hash string
}

func (f FileSystemAPI) describe(ctx context.Context, path string) (*unixfs.Info, error) {
	r, err := f.describeWithHash(ctx, path)
	if err != nil {
		return nil, err
	}
	return &r.Info, nil
}

func (f FileSystemAPI) describeWithHash(ctx context.Context, path string) (*describeResult, error) {
	const command = "file/ls"
	var out struct {
		Arguments map[string]string
		Objects   map[string]fileObject
	}
	if err := f.c.rpc.Request(command, path).Exec(ctx, &out); err != nil {
		return nil, err
	}
	hash, ok := out.Arguments[path]
	if !ok && len(out.Arguments) == 1 {
		for _, h := range out.Arguments {
			hash = h
		}
	}
	obj, ok := out.Objects[hash]
	if !ok {
		return nil, rpc.FormatError(command, "no object for "+path)
	}
	res := &describeResult{hash: hash}
	res.IsDirectory = obj.Type == "Directory"
	res.Size = obj.Size
	res.Links = make([]unixfs.Link, 0, len(obj.Links))
	for _, l := range obj.Links {
		id, err := decodeCid(command, l.Hash)
		if err != nil {
			return nil, err
		}
		res.Links = append(res.Links, unixfs.Link{Name: l.Name, Cid: id, Size: l.Size, IsDirectory: l.Type == "Directory"})
	}
	return res, nil
}

// Get downloads path as a tar archive. With compress the node gzips the
// archive and the returned reader transparently decompresses it. The caller
// must close it.
func (f FileSystemAPI) Get(ctx context.Context, path string, compress bool) (io.ReadCloser, error) {
	body, err := f.c.rpc.Request("get", path).
		Option("archive", true).
		Option("compress", compress).
		Download(ctx)
	if err != nil || !compress {
		return body, err
	}
	zr, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, &rpc.Error{Kind: rpc.KindFormat, Command: "get", Message: "gzip header", Cause: err}
	}
	return &gzipBody{Reader: zr, body: body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	return errors.Join(g.Reader.Close(), g.body.Close())
}
