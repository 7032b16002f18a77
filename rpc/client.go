// Package rpc is the HTTP transport for the IPFS node's RPC API.
//
// Every command is a request to <api>/api/v0/<command> with positional
// arguments as repeated arg= query parameters and flags as key=value
// parameters. Commands use POST; raw downloads use GET. Uploads are
// multipart with a single "file" field.
package rpc

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultAPIURL is the node endpoint used when none is configured.
const DefaultAPIURL = "http://localhost:5001"

const apiPrefix = "/api/v0/"

// DefaultUserAgent is sent on every request unless overridden.
const DefaultUserAgent = "xdao-ipfshttp/1.0"

// Client talks to one IPFS node. It is safe for concurrent use; each call is
// an independent round trip.
type Client struct {
	apiURL    string
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics

	mu         sync.Mutex
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL sets the node endpoint, e.g. "http://127.0.0.1:5001".
func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout bounds unary commands. Streaming commands are bounded only by
// the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for per-command debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient supplies the underlying transport instead of letting the
// client construct one on first use.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records per-command counters and latencies into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client for DefaultAPIURL unless overridden by opts.
func New(opts ...Option) *Client {
	c := &Client{
		apiURL:    DefaultAPIURL,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIURL returns the configured node endpoint.
func (c *Client) APIURL() string { return c.apiURL }

// HTTPClient returns the transport, creating it on first use. At most one
// instance is ever created per Client, even under concurrent first access.
func (c *Client) HTTPClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		// No client-level timeout: pub/sub and downloads are long-lived.
		c.httpClient = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
	}
	return c.httpClient
}

// Request starts building a command. args become the leading arg= parameters.
func (c *Client) Request(command string, args ...string) *Request {
	return &Request{
		client:  c,
		command: strings.Trim(command, "/"),
		args:    args,
	}
}
