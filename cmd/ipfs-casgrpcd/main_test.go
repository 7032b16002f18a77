package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/config"
	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/logging"
	"xdao.co/ipfshttp/storage/grpccas"
	"xdao.co/ipfshttp/storage/localfs"
)

func TestServeNodeWithMirror(t *testing.T) {
	node := ipfstest.New(t)
	mirrorDir := t.TempDir()

	v := viper.New()
	v.Set(config.KeyAPIURL, node.URL())
	v.Set("mirror", mirrorDir)
	settings, err := config.Load(v)
	require.NoError(t, err)
	d := &daemon{v: v, logger: logging.Discard(), reg: prometheus.NewRegistry()}

	cas, closeFn, err := d.openBackend(settings, "ipfs", nil)
	require.NoError(t, err)
	assert.Nil(t, closeFn)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, lis, cas, "") }()

	client, err := grpccas.Dial(lis.Addr().String(), grpccas.DialOptions{})
	require.NoError(t, err)
	defer client.Close()
	client.Timeout = 5 * time.Second

	id, err := client.Put(context.Background(), []byte("served"))
	require.NoError(t, err)
	assert.True(t, node.Has(id))

	mirror, err := localfs.New(mirrorDir)
	require.NoError(t, err)
	got, err := mirror.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("served"), got)

	families, err := d.reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ipfshttp_rpc_requests_total"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestUnknownBackend(t *testing.T) {
	v := viper.New()
	settings, err := config.Load(v)
	require.NoError(t, err)
	d := &daemon{v: v, logger: logging.Discard(), reg: prometheus.NewRegistry()}

	_, _, err = d.openBackend(settings, "grpc", nil)
	assert.Error(t, err, "grpc is a client-only backend")
	_, _, err = d.openBackend(settings, "localfs", map[string]string{"dir": t.TempDir()})
	assert.NoError(t, err)
}

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"--list-backends"}, &out, &errOut))
	assert.Contains(t, out.String(), "ipfs\t")
	assert.Contains(t, out.String(), "localfs\t")
	assert.NotContains(t, out.String(), "grpc\t")
}
