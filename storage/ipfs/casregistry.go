package ipfs

import (
	"fmt"
	"strconv"
	"time"

	"xdao.co/ipfshttp/coreapi"
	"xdao.co/ipfshttp/rpc"
	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Remote node block store over the RPC API",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys: map[string]string{
			"api-url":    "RPC endpoint (default " + rpc.DefaultAPIURL + ")",
			"pin":        "pin blocks as they are written (true/false)",
			"timeout":    "per-request timeout, e.g. 30s",
			"user-agent": "User-Agent header sent to the node",
		},
		Open: open,
	})
}

func open(cfg map[string]string) (storage.CAS, func() error, error) {
	var opts []rpc.Option
	if u := cfg["api-url"]; u != "" {
		opts = append(opts, rpc.WithAPIURL(u))
	}
	if ua := cfg["user-agent"]; ua != "" {
		opts = append(opts, rpc.WithUserAgent(ua))
	}
	if s := cfg["timeout"]; s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, nil, fmt.Errorf("ipfs: timeout: %w", err)
		}
		opts = append(opts, rpc.WithTimeout(d))
	}
	cas := New(coreapi.New(rpc.New(opts...), nil))
	if s := cfg["pin"]; s != "" {
		pin, err := strconv.ParseBool(s)
		if err != nil {
			return nil, nil, fmt.Errorf("ipfs: pin: %w", err)
		}
		cas.Pin = pin
	}
	return cas, nil, nil
}
