package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/ipfshttp/storage"
	"xdao.co/ipfshttp/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to ipfs-casgrpcd)",
		Usage:       casregistry.UsageCLI,
		Keys: map[string]string{
			"target":        "gRPC target host:port",
			"timeout":       "per-RPC timeout, e.g. 10s",
			"max-msg-bytes": "max message size in bytes (send+recv); 0 uses grpc defaults",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpc: missing %q", "target")
			}
			var opts DialOptions
			if s := cfg["max-msg-bytes"]; s != "" {
				n, err := strconv.Atoi(s)
				if err != nil {
					return nil, nil, fmt.Errorf("grpc: max-msg-bytes: %w", err)
				}
				opts.MaxMsgBytes = n
			}
			var timeout time.Duration
			if s := cfg["timeout"]; s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, nil, fmt.Errorf("grpc: timeout: %w", err)
				}
				timeout = d
			}
			client, err := Dial(target, opts)
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
