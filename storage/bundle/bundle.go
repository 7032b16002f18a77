package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/sourcegraph/conc/pool"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 2

// DefaultParallelism bounds concurrent block fetches during export.
const DefaultParallelism = 8

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// Recursive follows the links of dag-pb blocks so the whole DAG under
	// each root is exported.
	Recursive bool
	// Parallelism bounds concurrent fetches; zero uses DefaultParallelism.
	Parallelism int
}

// Export writes a deterministic TAR bundle containing the blocks for the
// given roots, and with Recursive everything they link to.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR
// headers are normalized. All exported bytes are validated against their
// CIDs.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, roots []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	blocks, err := collect(ctx, cas, roots, opts)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	index := make([]indexBlock, 0, len(keys))
	for _, k := range keys {
		if err := writeFile(tw, "blocks/"+k, blocks[k]); err != nil {
			_ = tw.Close()
			return err
		}
		index = append(index, indexBlock{CID: k, Size: len(blocks[k])})
	}

	if opts.IncludeIndex {
		idx, err := buildIndex(roots, index, opts.Labels)
		if err != nil {
			_ = tw.Close()
			return err
		}
		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// collect fetches the roots and, when recursive, their descendants one
// level at a time.
func collect(ctx context.Context, cas storage.CAS, roots []cid.Cid, opts ExportOptions) (map[string][]byte, error) {
	par := opts.Parallelism
	if par <= 0 {
		par = DefaultParallelism
	}

	seen := make(map[string]struct{}, len(roots))
	var frontier []cid.Cid
	for _, id := range roots {
		if !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		if _, ok := seen[id.String()]; !ok {
			seen[id.String()] = struct{}{}
			frontier = append(frontier, id)
		}
	}

	out := make(map[string][]byte, len(frontier))
	for len(frontier) > 0 {
		got := make([][]byte, len(frontier))
		p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(par)
		for i, id := range frontier {
			p.Go(func(ctx context.Context) error {
				b, err := cas.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("bundle: %s: %w", id, err)
				}
				if err := cidutil.Verify(id, b); err != nil {
					return storage.ErrCIDMismatch
				}
				got[i] = b
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return nil, err
		}

		var next []cid.Cid
		for i, id := range frontier {
			out[id.String()] = got[i]
			if !opts.Recursive || id.Type() != cid.DagProtobuf {
				continue
			}
			n, err := merkle.DecodeDagNode(got[i])
			if err != nil {
				return nil, fmt.Errorf("bundle: %s: %w", id, err)
			}
			for _, l := range n.Links() {
				if _, ok := seen[l.Cid.String()]; ok {
					continue
				}
				seen[l.Cid.String()] = struct{}{}
				next = append(next, l.Cid)
			}
		}
		frontier = next
	}
	return out, nil
}

func buildIndex(roots []cid.Cid, blocks []indexBlock, labels map[string]cid.Cid) (indexJSON, error) {
	idx := indexJSON{Version: FormatVersion, Blocks: blocks}

	rootSet := map[string]struct{}{}
	for _, r := range roots {
		rootSet[r.String()] = struct{}{}
	}
	for r := range rootSet {
		idx.Roots = append(idx.Roots, r)
	}
	sort.Strings(idx.Roots)

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			return idx, fmt.Errorf("bundle: empty label key")
		}
		v := labels[k]
		if !v.Defined() {
			return idx, storage.ErrInvalidCID
		}
		idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
	}
	return idx, nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every block in store under its
// entry's CID, returning the identifiers written in bundle order.
//
// Each block must hash to the CID named by its entry.
func Import(ctx context.Context, r io.Reader, store storage.BlockStore, opts ImportOptions) ([]cid.Cid, error) {
	if store == nil {
		return nil, fmt.Errorf("bundle: nil block store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []cid.Cid

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		if _, ok := seen[id.String()]; ok {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[id.String()] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return imported, storage.ErrCIDMismatch
		}
		if err := store.PutBlock(ctx, id, payload); err != nil {
			return imported, err
		}
		imported = append(imported, id)
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Roots   []string     `json:"roots,omitempty"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
