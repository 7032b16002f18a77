package coreapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/rpc"
)

func TestNamePublishResolve(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	id := srv.AddFile([]byte("published"))
	path := "/ipfs/" + id.String()

	named, err := c.Name().Publish(ctx, path, PublishOptions{Lifetime: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "/ipns/"+ipfstest.PeerID, named.Name)
	assert.Equal(t, path, named.Path)

	got, err := c.Name().Resolve(ctx, named.Name, true, false)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = c.Generic().Resolve(ctx, named.Name, true)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = c.Dns().Resolve(ctx, named.Name, false)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = c.Name().Publish(ctx, path, PublishOptions{Key: "missing"})
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)
}

func TestKeyLifecycle(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	key, err := c.Key().Create(ctx, "site", "ed25519", 0)
	require.NoError(t, err)
	assert.Equal(t, "site", key.Name)
	assert.Equal(t, mustPeer(t, "QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt"), key.ID)

	keys, err := c.Key().List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "self", keys[0].Name)
	assert.Equal(t, mustPeer(t, ipfstest.PeerID), keys[0].ID)
	assert.Equal(t, *key, keys[1])

	_, err = c.Key().Create(ctx, "site", "ed25519", 0)
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)

	removed, err := c.Key().Remove(ctx, "site")
	require.NoError(t, err)
	assert.Equal(t, key, removed)

	_, err = c.Key().Remove(ctx, "self")
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)
	keys, err = c.Key().List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestConfigGetSetReplace(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	v, err := c.Config().GetKey(ctx, "Addresses.API")
	require.NoError(t, err)
	assert.JSONEq(t, `"/ip4/127.0.0.1/tcp/5001"`, string(v))

	v, err = c.Config().Set(ctx, "Gateway.Name", "edge")
	require.NoError(t, err)
	assert.JSONEq(t, `"edge"`, string(v))

	v, err = c.Config().SetJSON(ctx, "Gateway.Limits", json.RawMessage(`{"Max":5}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Max":5}`, string(v))

	v, err = c.Config().GetKey(ctx, "Gateway")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name":"edge","Limits":{"Max":5}}`, string(v))

	_, err = c.Config().GetKey(ctx, "Nope.Nothing")
	assert.ErrorIs(t, err, rpc.ErrRequestFailed)

	require.NoError(t, c.Config().Replace(ctx, json.RawMessage(`{"Identity":{"PeerID":"x"}}`)))
	all, err := c.Config().Get(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Identity":{"PeerID":"x"}}`, string(all))
}

func TestGenericIDAndVersion(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	self, err := c.Generic().ID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, mustPeer(t, ipfstest.PeerID), self.ID)
	require.Len(t, self.Addresses, 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001/p2p/"+ipfstest.PeerID, self.Addresses[0].String())
	assert.Equal(t, "kubo/0.29.0/", self.AgentVersion)

	other := mustPeer(t, ipfstest.Peers[0].ID)
	info, err := c.Generic().ID(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, other, info.ID)

	v, err := c.Generic().Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.29.0", v.Version)
	assert.Equal(t, "15", v.Repo)

	require.NoError(t, c.Generic().Shutdown(ctx))
}

func TestBitswap(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	wanted, err := c.Bitswap().Wantlist(ctx, "")
	require.NoError(t, err)
	require.Len(t, wanted, 1)
	assert.Equal(t, emptyObjectCid, wanted[0].String())

	require.NoError(t, c.Bitswap().Unwant(ctx, wanted[0]))
	assert.Equal(t, 1, srv.Calls("bitswap/unwant"))

	p := mustPeer(t, ipfstest.Peers[1].ID)
	ledger, err := c.Bitswap().Ledger(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p, ledger.Peer)
	assert.Equal(t, uint64(1024), ledger.Sent)
	assert.Equal(t, uint64(2048), ledger.Recv)
	assert.Equal(t, uint64(3), ledger.Exchanged)
	assert.InDelta(t, 0.5, ledger.Value, 1e-9)
}

func TestStatsAndRepo(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	bw, err := c.Stats().Bandwidth(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Bandwidth{TotalIn: 4096, TotalOut: 8192, RateIn: 12.5, RateOut: 25}, bw)

	loose, err := c.Block().Put(ctx, []byte("loose"), BlockPutOptions{})
	require.NoError(t, err)
	kept, err := c.Block().Put(ctx, []byte("kept"), BlockPutOptions{Pin: true})
	require.NoError(t, err)

	st, err := c.Stats().Repo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.NumObjects)
	assert.Equal(t, uint64(len("loose")+len("kept")), st.RepoSize)
	assert.Equal(t, "fs-repo@15", st.Version)

	removed, err := c.Repo().GarbageCollect(ctx)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, loose.Hash(), removed[0].Hash())
	assert.False(t, srv.Has(loose))
	assert.True(t, srv.Has(kept))

	version, err := c.Repo().Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15", version)
}
