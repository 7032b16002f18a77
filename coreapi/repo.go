package coreapi

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfshttp/rpc"
)

// RepoAPI manages the node's local store.
type RepoAPI struct{ c *Client }

// RepoStat summarises the local store.
type RepoStat struct {
	NumObjects uint64
	RepoSize   uint64
	StorageMax uint64
	RepoPath   string
	Version    string
}

// GarbageCollect removes unpinned blocks and returns their identifiers.
func (r RepoAPI) GarbageCollect(ctx context.Context) ([]cid.Cid, error) {
	const command = "repo/gc"
	var removed []cid.Cid
	err := r.c.rpc.Request(command).Stream(ctx, func(line json.RawMessage) error {
		var ev struct {
			Key   cidRef
			Error string
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			return &rpc.Error{Kind: rpc.KindFormat, Command: command, Message: "decode gc event", Cause: err}
		}
		if ev.Error != "" {
			return &rpc.Error{Kind: rpc.KindRequest, Command: command, Message: ev.Error}
		}
		id, err := decodeCid(command, ev.Key.Cid)
		if err != nil {
			return err
		}
		removed = append(removed, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Stat returns local store statistics.
func (r RepoAPI) Stat(ctx context.Context) (*RepoStat, error) {
	var out RepoStat
	if err := r.c.rpc.Request("repo/stat").Exec(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version returns the store format version.
func (r RepoAPI) Version(ctx context.Context) (string, error) {
	var out struct{ Version string }
	if err := r.c.rpc.Request("repo/version").Exec(ctx, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// StatsAPI reports node statistics.
type StatsAPI struct{ c *Client }

// Bandwidth is the node's traffic totals and current rates in bytes/s.
type Bandwidth struct {
	TotalIn  uint64
	TotalOut uint64
	RateIn   float64
	RateOut  float64
}

// Bandwidth returns the node's traffic counters.
func (s StatsAPI) Bandwidth(ctx context.Context) (*Bandwidth, error) {
	var out Bandwidth
	if err := s.c.rpc.Request("stats/bw").Exec(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Repo is RepoAPI.Stat.
func (s StatsAPI) Repo(ctx context.Context) (*RepoStat, error) {
	return s.c.Repo().Stat(ctx)
}
