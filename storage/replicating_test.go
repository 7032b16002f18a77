package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/localfs"
	"xdao.co/ipfshttp/storage/testkit"
)

func newLocal(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

// putOnly hides PutBlock from the wrapped store.
type putOnly struct{ storage.CAS }

// liar answers every Put with the same identifier.
type liar struct {
	storage.CAS
	id cid.Cid
}

func (l liar) Put(context.Context, []byte) (cid.Cid, error) { return l.id, nil }

type failing struct{ storage.CAS }

func (failing) Get(context.Context, cid.Cid) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestReplicatingConformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: newLocal(t)},
			{Name: "b", CAS: newLocal(t)},
		}}
	})
}

func TestReplicatingWriteAll(t *testing.T) {
	ctx := context.Background()
	a, b := newLocal(t), newLocal(t)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, ids, err := r.PutAll(ctx, []byte("everywhere"))
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.True(t, ids["a"].Equals(id))
	assert.True(t, ids["b"].Equals(id))

	for _, cas := range []storage.CAS{a, b} {
		ok, err := cas.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestReplicatingWriteFirstReadsFallBack(t *testing.T) {
	ctx := context.Background()
	a, b := newLocal(t), newLocal(t)
	old, err := b.Put(ctx, []byte("only in b"))
	require.NoError(t, err)

	r := storage.ReplicatingCAS{
		Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}},
		Policy:   storage.WriteFirst,
	}
	id, err := r.Put(ctx, []byte("only in a"))
	require.NoError(t, err)
	ok, err := b.Has(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.Get(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, []byte("only in b"), got)
	ok, err = r.Has(ctx, old)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplicatingDetectsDisagreement(t *testing.T) {
	other, err := cidutil.CIDv1RawSHA256CID([]byte("something else"))
	require.NoError(t, err)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "honest", CAS: newLocal(t)},
		{Name: "liar", CAS: liar{CAS: newLocal(t), id: other}},
	}}

	_, ids, err := r.PutAll(context.Background(), []byte("payload"))
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
	assert.True(t, ids["liar"].Equals(other))
}

func TestReplicatingPutBlockNeedsBlockStores(t *testing.T) {
	data := []byte("block")
	id, err := cidutil.CIDv1RawSHA256CID(data)
	require.NoError(t, err)
	plain := newLocal(t)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "local", CAS: newLocal(t)},
		{Name: "plain", CAS: putOnly{plain}},
	}}

	require.Error(t, r.PutBlock(context.Background(), id, data))
	ok, err := plain.Has(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplicatingErrors(t *testing.T) {
	ctx := context.Background()
	_, err := storage.ReplicatingCAS{}.Put(ctx, []byte("x"))
	assert.ErrorIs(t, err, storage.ErrNoBackends)

	_, err = storage.ReplicatingCAS{
		Backends: []storage.NamedCAS{{Name: "a", CAS: newLocal(t)}},
		Policy:   "some",
	}.Put(ctx, []byte("x"))
	assert.Error(t, err)

	id, err := cidutil.CIDv1RawSHA256CID([]byte("x"))
	require.NoError(t, err)
	_, err = storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "broken", CAS: failing{newLocal(t)}},
		{Name: "a", CAS: newLocal(t)},
	}}.Get(ctx, id)
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
}
