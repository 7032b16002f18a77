package coreapi

import (
	"bytes"
	"context"
	"encoding/json"
)

// ConfigAPI reads and writes the node's configuration document.
type ConfigAPI struct{ c *Client }

// Get returns the whole configuration.
func (a ConfigAPI) Get(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := a.c.rpc.Request("config/show").Exec(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetKey returns one value, addressed with a dotted key such as
// "Addresses.API".
func (a ConfigAPI) GetKey(ctx context.Context, key string) (json.RawMessage, error) {
	var out struct {
		Key   string
		Value json.RawMessage
	}
	if err := a.c.rpc.Request("config", key).Exec(ctx, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Set stores a string value.
func (a ConfigAPI) Set(ctx context.Context, key, value string) (json.RawMessage, error) {
	return a.set(ctx, key, value, false)
}

// SetJSON stores a JSON value.
func (a ConfigAPI) SetJSON(ctx context.Context, key string, value json.RawMessage) (json.RawMessage, error) {
	return a.set(ctx, key, string(value), true)
}

func (a ConfigAPI) set(ctx context.Context, key, value string, isJSON bool) (json.RawMessage, error) {
	req := a.c.rpc.Request("config", key, value)
	if isJSON {
		req.Option("json", true)
	}
	var out struct {
		Key   string
		Value json.RawMessage
	}
	if err := req.Exec(ctx, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Replace swaps the whole configuration.
func (a ConfigAPI) Replace(ctx context.Context, config json.RawMessage) error {
	return a.c.rpc.Request("config/replace").UploadExec(ctx, bytes.NewReader(config), "", nil)
}
