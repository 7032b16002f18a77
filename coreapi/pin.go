package coreapi

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
)

// PinAPI keeps content from being garbage collected.
type PinAPI struct{ c *Client }

// Pin is one entry of pin/ls.
type Pin struct {
	Cid  cid.Cid
	Type string
}

// Add pins path, recursively unless recursive is false.
func (p PinAPI) Add(ctx context.Context, path string, recursive bool) ([]cid.Cid, error) {
	var out struct{ Pins []string }
	err := p.c.rpc.Request("pin/add", path).Option("recursive", recursive).Exec(ctx, &out)
	if err != nil {
		return nil, err
	}
	return decodeCids("pin/add", out.Pins)
}

// List returns every pin, sorted by identifier.
func (p PinAPI) List(ctx context.Context) ([]Pin, error) {
	var out struct {
		Keys map[string]struct{ Type string }
	}
	if err := p.c.rpc.Request("pin/ls").Exec(ctx, &out); err != nil {
		return nil, err
	}
	pins := make([]Pin, 0, len(out.Keys))
	for k, v := range out.Keys {
		id, err := decodeCid("pin/ls", k)
		if err != nil {
			return nil, err
		}
		pins = append(pins, Pin{Cid: id, Type: v.Type})
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Cid.String() < pins[j].Cid.String() })
	return pins, nil
}

// Remove unpins id.
func (p PinAPI) Remove(ctx context.Context, id cid.Cid, recursive bool) ([]cid.Cid, error) {
	var out struct{ Pins []string }
	err := p.c.rpc.Request("pin/rm", id.String()).Option("recursive", recursive).Exec(ctx, &out)
	if err != nil {
		return nil, err
	}
	return decodeCids("pin/rm", out.Pins)
}

func decodeCids(command string, ss []string) ([]cid.Cid, error) {
	out := make([]cid.Cid, 0, len(ss))
	for _, s := range ss {
		id, err := decodeCid(command, s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
