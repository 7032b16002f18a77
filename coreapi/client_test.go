package coreapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
)

const (
	emptyObjectCid    = "QmdfTbBqBPQ7VNxZEYEj14VmRuZBkqFbiwReogJgS1zR1n"
	emptyDirectoryCid = "QmUNLLsPACCz1vLxQVkXqqLX5R1X345qqfHbsf67hvA3Nn"
	blorbV0           = "QmPv52ekjS75L4JmHpXVeuJ5uX2ecSfSZo88NSyxwA3rAQ"
	blorbRawV1        = "zb2rhYDhWhxyHN6HFAKGvHnLogYfnk9KvzBUZvCg7sYhS22N8"
)

func newTestClient(t *testing.T) (*Client, *ipfstest.Server) {
	t.Helper()
	srv := ipfstest.New(t)
	return New(rpc.New(rpc.WithAPIURL(srv.URL())), nil), srv
}

func TestNodeShellFetchesBlockSizeOnce(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	id, err := c.Block().Put(ctx, []byte("blorb"), BlockPutOptions{})
	require.NoError(t, err)

	n, err := c.Node(id)
	require.NoError(t, err)
	assert.Equal(t, 0, srv.Calls("block/stat"))

	for i := 0; i < 3; i++ {
		size, err := n.BlockSize(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), size)
	}
	assert.Equal(t, 1, srv.Calls("block/stat"))

	data, err := n.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("blorb"), data)
}

func TestNodeShellEquality(t *testing.T) {
	c, _ := newTestClient(t)
	a, err := c.ParseNode("/ipfs/" + blorbV0)
	require.NoError(t, err)
	b, err := c.ParseNode(blorbV0)
	require.NoError(t, err)
	other, err := c.ParseNode(emptyObjectCid)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(other))
	assert.Equal(t, "/ipfs/"+blorbV0, a.String())

	_, err = c.ParseNode("")
	assert.ErrorIs(t, err, cidutil.ErrEmptyPath)
}

func TestNodeChildrenCarrySizes(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	leaf := merkle.NewDagNode([]byte("leaf"), nil)
	srv.StoreNode(leaf)
	root := srv.StoreNode(merkle.NewDagNode(nil, []merkle.Link{leaf.ToLink("leaf")}))

	n, err := c.Node(root)
	require.NoError(t, err)
	children, err := n.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "leaf", children[0].Name())

	size, err := children[0].BlockSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, leaf.Size(), size)
	assert.Equal(t, 0, srv.Calls("block/stat"))
	assert.Equal(t, 1, srv.Calls("object/links"))
}

func TestBlockPutGetStat(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	id, err := c.Block().Put(ctx, []byte("blorb"), BlockPutOptions{})
	require.NoError(t, err)
	assert.Equal(t, blorbV0, id.String())
	assert.True(t, srv.Has(id))

	b, err := c.Block().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("blorb"), b.Data())
	assert.Equal(t, uint64(5), b.Size())
	assert.True(t, b.Cid().Equals(id))

	st, err := c.Block().Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Size)
	assert.True(t, st.Cid.Equals(id))
}

func TestBlockPutRawVersion1(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	id, err := c.Block().Put(ctx, []byte("blorb"), BlockPutOptions{Format: "raw"})
	require.NoError(t, err)
	s, err := id.StringOfBase(multibase.Base58BTC)
	require.NoError(t, err)
	assert.Equal(t, blorbRawV1, s)

	want, err := cidutil.CIDv1RawSHA256CID([]byte("blorb"))
	require.NoError(t, err)
	assert.True(t, want.Equals(id))

	base32, err := c.Block().Put(ctx, []byte("blorb"), BlockPutOptions{Format: "raw", CidBase: "base32"})
	require.NoError(t, err)
	assert.True(t, want.Equals(base32))
}

func TestBlockRemove(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	id, err := c.Block().Put(ctx, []byte("blorb"), BlockPutOptions{})
	require.NoError(t, err)

	removed, err := c.Block().Remove(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, removed.Equals(id))
	assert.False(t, srv.Has(id))

	removed, err = c.Block().Remove(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, cid.Undef, removed)

	_, err = c.Block().Remove(ctx, id, false)
	require.Error(t, err)
	assert.True(t, rpc.IsKind(err, rpc.KindRequest))
}

func TestBlockGetMissing(t *testing.T) {
	c, _ := newTestClient(t)
	id, err := cid.Decode(blorbV0)
	require.NoError(t, err)

	_, err = c.Block().Get(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)
	var rerr *rpc.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusInternalServerError, rerr.StatusCode)
}

func TestObjectTemplates(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	empty, err := c.Object().New(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, emptyObjectCid, empty.Cid().String())

	dir, err := c.Object().NewDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, emptyDirectoryCid, dir.Cid().String())

	_, err = c.Object().New(ctx, "nope")
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)
}

func TestObjectPutGetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	alpha, err := c.Object().Put(ctx, merkle.NewDagNode([]byte("alpha"), nil))
	require.NoError(t, err)
	beta, err := c.Object().Put(ctx, merkle.NewDagNode([]byte("beta"), nil))
	require.NoError(t, err)

	payload := []byte{0x00, 0xff, 0x80, 'p', 0x0a}
	parent := merkle.NewDagNode(payload, []merkle.Link{beta.ToLink("b"), alpha.ToLink("a")})
	stored, err := c.Object().Put(ctx, parent)
	require.NoError(t, err)

	got, err := c.Object().Get(ctx, stored.Cid())
	require.NoError(t, err)
	assert.True(t, got.Cid().Equals(parent.Cid()))
	assert.Equal(t, payload, got.Data())
	links := got.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "a", links[0].Name)
	assert.Equal(t, "b", links[1].Name)

	fetched, err := c.Object().Links(ctx, parent.Cid())
	require.NoError(t, err)
	assert.Equal(t, links, fetched)

	st, err := c.Object().Stat(ctx, parent.Cid())
	require.NoError(t, err)
	assert.Equal(t, 2, st.LinkCount)
	assert.Equal(t, uint64(len(payload)), st.DataSize)
	assert.Equal(t, parent.Size(), st.BlockSize)
	assert.Equal(t, parent.Size()+alpha.Size()+beta.Size(), st.CumulativeSize)
}

func TestObjectPutKeepsNodeOnMismatch(t *testing.T) {
	srv := ipfstest.New(t)
	var logs bytes.Buffer
	c := New(rpc.New(rpc.WithAPIURL(srv.URL())), slog.New(slog.NewTextHandler(&logs, nil)))
	srv.Handle("object/put", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Hash":"` + emptyObjectCid + `"}`))
	})

	node := merkle.NewDagNode([]byte("x"), nil)
	got, err := c.Object().Put(context.Background(), node)
	require.NoError(t, err)
	assert.Same(t, node, got)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "stored="+emptyObjectCid)
}

func TestPinLifecycle(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	id := srv.AddFile([]byte("pinned"))

	pinned, err := c.Pin().Add(ctx, id.String(), true)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.True(t, pinned[0].Equals(id))

	pins, err := c.Pin().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Pin{{Cid: id, Type: "recursive"}}, pins)

	unpinned, err := c.Pin().Remove(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, unpinned, 1)

	_, err = c.Pin().Remove(ctx, id, true)
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)
}

func TestUnsupportedCommandsMakeNoRequest(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	_, err := c.Key().Rename(ctx, "a", "b")
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	_, err = c.Key().Import(ctx, "a", nil, "")
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	_, err = c.Key().Export(ctx, "a", "")
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	_, err = c.Dag().Get(ctx, blorbV0)
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	_, err = c.Dag().Put(ctx, []byte(`{}`), "", "")
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	_, err = c.Dht().Get(ctx, "k")
	assert.ErrorIs(t, err, rpc.ErrNotImplemented)
	err = c.Dht().Put(ctx, "k", nil)
	assert.True(t, rpc.IsKind(err, rpc.KindUnsupported))

	for _, cmd := range []string{"key/rename", "key/import", "key/export", "dag/get", "dag/put", "dht/get", "dht/put"} {
		assert.Zero(t, srv.Calls(cmd), cmd)
	}
}
