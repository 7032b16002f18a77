package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestURL(t *testing.T) {
	c := New(WithAPIURL("http://node:5001/"))
	u := c.Request("block/rm", "QmA", "QmB").
		Option("force", true).
		Option("cid-base", "base32").
		URL()
	assert.Equal(t, "http://node:5001/api/v0/block/rm?arg=QmA&arg=QmB&cid-base=base32&force=true", u)

	u = c.Request("id").URL()
	assert.Equal(t, "http://node:5001/api/v0/id", u)

	u = c.Request("pubsub/pub", "my topic").Option("n", 3).URL()
	assert.Equal(t, "http://node:5001/api/v0/pubsub/pub?arg=my+topic&n=3", u)
}

func TestDefaultAPIURL(t *testing.T) {
	assert.Equal(t, DefaultAPIURL, New().APIURL())
	assert.Equal(t, DefaultAPIURL, New(WithAPIURL("  ")).APIURL())
}

func TestExecDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/version", r.URL.Path)
		assert.Equal(t, "ua-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `{"Version":"0.30.0","Commit":"abc"}`)
	}))
	defer srv.Close()

	c := New(WithAPIURL(srv.URL), WithUserAgent("ua-test"))
	var out map[string]string
	require.NoError(t, c.Request("version").Exec(context.Background(), &out))
	assert.Equal(t, "0.30.0", out["Version"])
}

func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0/missing":
			http.NotFound(w, r)
		case "/api/v0/json-error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"Message":"blockstore: block not found","Code":0,"Type":"error"}`)
		case "/api/v0/text-error":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "bad argument\n")
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	c := New(WithAPIURL(srv.URL))
	ctx := context.Background()

	err := c.Request("missing").Exec(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusNotFound, rerr.StatusCode)
	assert.True(t, strings.HasPrefix(rerr.Message, "Invalid IPFS command: "))

	err = c.Request("json-error").Exec(ctx, nil)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "blockstore: block not found", rerr.Message)
	assert.True(t, IsKind(err, KindRequest))
	assert.False(t, errors.Is(err, ErrNotImplemented))

	err = c.Request("text-error").Exec(ctx, nil)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "bad argument", rerr.Message)

	err = c.Request("empty").Exec(ctx, nil)
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), rerr.Message)
}

func TestTransportFailureIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	err := New(WithAPIURL(u)).Request("id").Exec(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
}

func TestUnsupportedAndFormatKinds(t *testing.T) {
	err := NotImplemented("dag/put")
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.False(t, errors.Is(err, ErrRequestFailed))

	err = FormatError("swarm/peers", "unknown shape")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	assert.True(t, IsKind(err, KindFormat))
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Name": hdr.Filename,
			"Body": string(b),
			"Fmt":  r.URL.Query().Get("format"),
		})
	}))
	defer srv.Close()

	c := New(WithAPIURL(srv.URL))
	var out map[string]string
	err := c.Request("block/put").Option("format", "raw").
		UploadExec(context.Background(), strings.NewReader("blorb"), "a.txt", &out)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", out["Name"])
	assert.Equal(t, "blorb", out["Body"])
	assert.Equal(t, "raw", out["Fmt"])
}

func TestStreamLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{\"n\":1}\n\n{\"n\":2}\n{\"n\":3}")
	}))
	defer srv.Close()

	c := New(WithAPIURL(srv.URL))
	var got []int
	err := c.Request("repo/gc").Stream(context.Background(), func(line json.RawMessage) error {
		var v struct{ N int }
		if err := json.Unmarshal(line, &v); err != nil {
			return err
		}
		got = append(got, v.N)
		if v.N == 2 {
			return ErrStopStream
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestHTTPClientCreatedOnce(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	seen := make([]*http.Client, 16)
	for i := range seen {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.HTTPClient()
		}(i)
	}
	wg.Wait()
	for _, hc := range seen {
		assert.Same(t, seen[0], hc)
	}
}

func TestMetricsObserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v0/nope" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	c := New(WithAPIURL(srv.URL), WithMetrics(m))
	ctx := context.Background()
	require.NoError(t, c.Request("id").Exec(ctx, nil))
	require.NoError(t, c.Request("id").Exec(ctx, nil))
	require.Error(t, c.Request("nope").Exec(ctx, nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("nope", "404")))
}
