package coreapi

import (
	"context"
	"time"

	"xdao.co/ipfshttp/rpc"
)

// NameAPI publishes and resolves IPNS names.
type NameAPI struct{ c *Client }

// NamedContent binds a name to a path.
type NamedContent struct {
	Name string
	Path string
}

// PublishOptions mirror name/publish flags.
type PublishOptions struct {
	// Key names the key to publish under; "" means "self".
	Key string
	// Lifetime is how long the record stays valid; zero uses the node's
	// default.
	Lifetime time.Duration
	// NoResolve skips checking that path resolves before publishing.
	NoResolve bool
}

// Publish points the key's name at path.
func (n NameAPI) Publish(ctx context.Context, path string, opts PublishOptions) (*NamedContent, error) {
	req := n.c.rpc.Request("name/publish", path).Option("resolve", !opts.NoResolve)
	if opts.Key != "" {
		req.Option("key", opts.Key)
	}
	if opts.Lifetime > 0 {
		req.Option("lifetime", opts.Lifetime)
	}
	var out struct{ Name, Value string }
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	return &NamedContent{Name: "/ipns/" + out.Name, Path: out.Value}, nil
}

// Resolve returns the path name points at.
func (n NameAPI) Resolve(ctx context.Context, name string, recursive, nocache bool) (string, error) {
	return resolvePath(ctx, n.c.rpc.Request("name/resolve", name).
		Option("recursive", recursive).
		Option("nocache", nocache))
}

func resolvePath(ctx context.Context, req *rpc.Request) (string, error) {
	var out struct{ Path string }
	if err := req.Exec(ctx, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}
