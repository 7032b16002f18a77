package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/bundle"
	"xdao.co/ipfshttp/storage/ipfs"
	"xdao.co/ipfshttp/storage/localfs"
)

func newLocal(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func entries(t *testing.T, b []byte) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	tr := tar.NewReader(bytes.NewReader(b))
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[h.Name] = body
	}
}

func TestExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := newLocal(t)
	id1, err := cas.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	id2, err := cas.Put(ctx, []byte("world"))
	require.NoError(t, err)

	var outA, outB bytes.Buffer
	require.NoError(t, bundle.Export(ctx, &outA, cas, []cid.Cid{id2, id1}, bundle.ExportOptions{IncludeIndex: true}))
	require.NoError(t, bundle.Export(ctx, &outB, cas, []cid.Cid{id1, id2, id1}, bundle.ExportOptions{IncludeIndex: true}))
	assert.Equal(t, outA.Bytes(), outB.Bytes())
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newLocal(t)
	payload := []byte("payload")
	id, err := src.Put(ctx, payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	labels := map[string]cid.Cid{"greeting": id}
	require.NoError(t, bundle.Export(ctx, &buf, src, []cid.Cid{id}, bundle.ExportOptions{IncludeIndex: true, Labels: labels}))

	var idx struct {
		Version int
		Roots   []string
		Labels  []struct{ Name, CID string }
	}
	require.NoError(t, json.Unmarshal(entries(t, buf.Bytes())["index.json"], &idx))
	assert.Equal(t, bundle.FormatVersion, idx.Version)
	assert.Equal(t, []string{id.String()}, idx.Roots)
	require.Len(t, idx.Labels, 1)
	assert.Equal(t, "greeting", idx.Labels[0].Name)

	dst := newLocal(t)
	imported, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []cid.Cid{id}, imported)

	got, err := dst.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestExportDAGFromNode(t *testing.T) {
	ctx := context.Background()
	srv := ipfstest.New(t)
	remote := ipfs.New(coreapi.New(rpc.New(rpc.WithAPIURL(srv.URL())), nil))

	rawLeaf, err := cidutil.CIDv1RawSHA256CID([]byte("raw leaf"))
	require.NoError(t, err)
	srv.Store(rawLeaf, []byte("raw leaf"))
	leaf := merkle.NewDagNode([]byte("leaf"), nil)
	srv.StoreNode(leaf)
	mid := merkle.NewDagNode(nil, []merkle.Link{leaf.ToLink("leaf"), {Name: "raw", Cid: rawLeaf, Size: 8}})
	srv.StoreNode(mid)
	root := merkle.NewDagNode([]byte("root"), []merkle.Link{mid.ToLink("mid"), leaf.ToLink("again")})
	srv.StoreNode(root)

	var flat bytes.Buffer
	require.NoError(t, bundle.Export(ctx, &flat, remote, []cid.Cid{root.Cid()}, bundle.ExportOptions{}))
	assert.Len(t, entries(t, flat.Bytes()), 1)

	var deep bytes.Buffer
	require.NoError(t, bundle.Export(ctx, &deep, remote, []cid.Cid{root.Cid()}, bundle.ExportOptions{Recursive: true, Parallelism: 2}))
	files := entries(t, deep.Bytes())
	assert.Len(t, files, 4)
	assert.Equal(t, leaf.Encode(), files["blocks/"+leaf.Cid().String()])
	assert.Equal(t, []byte("raw leaf"), files["blocks/"+rawLeaf.String()])

	// Version 0 blocks keep their identifiers on the way back in.
	dst := newLocal(t)
	imported, err := bundle.Import(ctx, bytes.NewReader(deep.Bytes()), dst, bundle.ImportOptions{})
	require.NoError(t, err)
	assert.Len(t, imported, 4)
	got, err := dst.Get(ctx, root.Cid())
	require.NoError(t, err)
	assert.Equal(t, root.Encode(), got)
}

func TestExportMissingBlock(t *testing.T) {
	ctx := context.Background()
	absent := merkle.NewDagNode([]byte("absent"), nil).Cid()
	err := bundle.Export(ctx, io.Discard, newLocal(t), []cid.Cid{absent}, bundle.ExportOptions{})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = bundle.Export(ctx, io.Discard, newLocal(t), []cid.Cid{cid.Undef}, bundle.ExportOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidCID)
}

func tarOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestImportFailsClosed(t *testing.T) {
	ctx := context.Background()
	id, err := cidutil.CIDv1RawSHA256CID([]byte("genuine"))
	require.NoError(t, err)

	_, err = bundle.Import(ctx, bytes.NewReader(tarOf(t, map[string][]byte{"blocks/" + id.String(): []byte("forged")})), newLocal(t), bundle.ImportOptions{})
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)

	_, err = bundle.Import(ctx, bytes.NewReader(tarOf(t, map[string][]byte{"notes.txt": []byte("x")})), newLocal(t), bundle.ImportOptions{})
	assert.Error(t, err)

	imported, err := bundle.Import(ctx, bytes.NewReader(tarOf(t, map[string][]byte{"notes.txt": []byte("x")})), newLocal(t), bundle.ImportOptions{IgnoreUnknown: true})
	require.NoError(t, err)
	assert.Empty(t, imported)

	_, err = bundle.Import(ctx, bytes.NewReader(tarOf(t, map[string][]byte{"../escape": []byte("x")})), newLocal(t), bundle.ImportOptions{IgnoreUnknown: true})
	assert.Error(t, err)
}
