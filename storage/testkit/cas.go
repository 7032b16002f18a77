package testkit

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, block storage")

		id, err := cas.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		require.NoError(t, err)
		assert.True(t, wantID.Equals(id), "got %s want %s", id, wantID)

		got, err := cas.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, b)
		require.NoError(t, err)
		id2, err := cas.Put(ctx, b)
		require.NoError(t, err)
		assert.True(t, id1.Equals(id2))
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		require.NoError(t, err)

		ok, err := cas.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = cas.Get(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = cas.Put(ctx, b)
		require.NoError(t, err)
		ok, err = cas.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		ok, err := cas.Has(ctx, cid.Undef)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = cas.Get(ctx, cid.Undef)
		assert.Error(t, err)
	})
}

// RunBlockStoreConformance runs the CAS suite plus checks for blocks
// stored under caller-chosen identifiers.
func RunBlockStoreConformance(t *testing.T, newStore func(t *testing.T) storage.BlockStore) {
	t.Helper()
	RunCASConformance(t, func(t *testing.T) storage.CAS { return newStore(t) })
	ctx := context.Background()

	t.Run("PutBlockVersion0", func(t *testing.T) {
		bs := newStore(t)
		n := merkle.NewDagNode([]byte("node"), nil)

		require.NoError(t, bs.PutBlock(ctx, n.Cid(), n.Encode()))
		got, err := bs.Get(ctx, n.Cid())
		require.NoError(t, err)
		assert.Equal(t, n.Encode(), got)
		ok, err := bs.Has(ctx, n.Cid())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PutBlockRejectsMismatch", func(t *testing.T) {
		bs := newStore(t)
		n := merkle.NewDagNode([]byte("node"), nil)
		err := bs.PutBlock(ctx, n.Cid(), []byte("other bytes"))
		assert.ErrorIs(t, err, storage.ErrCIDMismatch)
	})
}
