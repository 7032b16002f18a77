package grpccas

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/ipfs"
	"xdao.co/ipfshttp/storage/localfs"
	"xdao.co/ipfshttp/storage/testkit"
)

func serve(t *testing.T, cas storage.CAS) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: cas})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	client, err := Dial("passthrough:///bufnet", DialOptions{Extra: []grpc.DialOption{grpc.WithContextDialer(dialer)}})
	require.NoError(t, err)
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCConformanceOverLocalFS(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := localfs.New(t.TempDir())
		require.NoError(t, err)
		return serve(t, cas)
	})
}

func TestGRPCServesNodeBlocks(t *testing.T) {
	node := ipfstest.New(t)
	remote := ipfs.New(coreapi.New(rpc.New(rpc.WithAPIURL(node.URL())), nil))
	mirror, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	client := serve(t, storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "ipfs", CAS: remote},
		{Name: "localfs", CAS: mirror},
	}})
	ctx := context.Background()

	id, err := client.Put(ctx, []byte("replicated"))
	require.NoError(t, err)
	assert.True(t, node.Has(id))
	ok, err := mirror.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// dag-pb blocks already on the node are readable by their version 0 id.
	n := merkle.NewDagNode([]byte("dag node"), nil)
	node.StoreNode(n)
	got, err := client.Get(ctx, n.Cid())
	require.NoError(t, err)
	assert.Equal(t, n.Encode(), got)
}

func TestGRPCErrorMapping(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	client := serve(t, cas)

	missing := merkle.NewDagNode([]byte("absent"), nil).Cid()
	_, err = client.Get(context.Background(), missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = client.client.Get(context.Background(), wrapperspb.String("not-a-cid"))
	assert.ErrorIs(t, mapRPC(err), storage.ErrInvalidCID)
}
