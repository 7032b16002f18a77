package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/internal/ipfstest"
	"xdao.co/ipfshttp/merkle"
	"xdao.co/ipfshttp/storage/localfs"
)

func runCLI(t *testing.T, srv *ipfstest.Server, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(append([]string{"--api-url", srv.URL()}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestVersionAndID(t *testing.T) {
	srv := ipfstest.New(t)

	code, out, _ := runCLI(t, srv, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"Version": "0.29.0"`)

	code, out, _ = runCLI(t, srv, "id")
	require.Equal(t, 0, code)
	assert.Contains(t, out, ipfstest.PeerID)
}

func TestAddThenCat(t *testing.T) {
	srv := ipfstest.New(t)
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("from the cli"), 0o644))

	code, out, errOut := runCLI(t, srv, "add", "-q", path)
	require.Equal(t, 0, code, errOut)
	id := strings.TrimSpace(out)

	code, out, _ = runCLI(t, srv, "cat", id)
	require.Equal(t, 0, code)
	assert.Equal(t, "from the cli", out)

	code, out, _ = runCLI(t, srv, "pin", "ls")
	require.Equal(t, 0, code)
	assert.Contains(t, out, id+" recursive")
}

func TestUsageErrors(t *testing.T) {
	srv := ipfstest.New(t)

	code, _, errOut := runCLI(t, srv, "block", "stat", "not-a-cid")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "not-a-cid")

	code, _, _ = runCLI(t, srv, "--log-level", "loud", "version")
	assert.Equal(t, 2, code)
	assert.Zero(t, srv.Calls("version"))

	code, _, _ = runCLI(t, srv, "block", "stat", merkle.NewDagNode([]byte("absent"), nil).Cid().String())
	assert.Equal(t, 1, code)
}

func TestConfigFileSetsEndpoint(t *testing.T) {
	srv := ipfstest.New(t)
	cfg := filepath.Join(t.TempDir(), "ipfsctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("api_url: "+srv.URL()+"\nlog_format: json\n"), 0o644))

	var out, errOut bytes.Buffer
	code := run([]string{"--config", cfg, "version"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Equal(t, 1, srv.Calls("version"))
}

func TestExportImportBundle(t *testing.T) {
	srv := ipfstest.New(t)
	leaf := merkle.NewDagNode([]byte("leaf"), nil)
	srv.StoreNode(leaf)
	root := merkle.NewDagNode([]byte("root"), []merkle.Link{leaf.ToLink("leaf")})
	srv.StoreNode(root)
	dir := t.TempDir()
	file := filepath.Join(dir, "dag.tar")

	code, _, errOut := runCLI(t, srv, "export", "-r", "-o", file, root.Cid().String())
	require.Equal(t, 0, code, errOut)

	mirror := filepath.Join(dir, "mirror")
	code, out, errOut := runCLI(t, srv, "import", "--backend", "localfs", "--backend-opt", "dir="+mirror, file)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, 2, strings.Count(out, "imported "))

	cas, err := localfs.New(mirror)
	require.NoError(t, err)
	got, err := cas.Get(context.Background(), leaf.Cid())
	require.NoError(t, err)
	assert.Equal(t, leaf.Encode(), got)

	code, _, _ = runCLI(t, srv, "import", "--backend", "nope", file)
	assert.Equal(t, 1, code)
}

func TestBackendsListing(t *testing.T) {
	srv := ipfstest.New(t)
	code, out, _ := runCLI(t, srv, "backends")
	require.Equal(t, 0, code)
	for _, name := range []string{"grpc\t", "ipfs\t", "localfs\t", "  dir\t"} {
		assert.Contains(t, out, name)
	}
}
