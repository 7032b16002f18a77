// Package ipfstest runs an in-process fake of the node's RPC API for tests.
//
// Blocks, pins, keys, names and the bootstrap list live in memory. Identifiers
// are real: dag-pb nodes are encoded with the merkle codec and hashed with
// sha2-256, so a block stored through the fake has the identifier a real
// daemon would assign.
package ipfstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// PeerID is the fake node's own peer id.
const PeerID = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

// DefaultBootstrap is what bootstrap/add/default restores.
var DefaultBootstrap = []string{
	"/ip4/104.131.131.82/tcp/4001/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
	"/dnsaddr/bootstrap.libp2p.io/p2p/QmbLHAnMoJPWSCR5Zhtx6BHJX9KiKNN6tpvbUcqanj75Nb",
}

// Server is a fake daemon. Create it with New; it is closed by t.Cleanup.
type Server struct {
	srv     *httptest.Server
	closing chan struct{}
	once    sync.Once

	mu        sync.Mutex
	calls     map[string]int
	overrides map[string]http.HandlerFunc
	blocks    map[string][]byte // multihash bytes -> block
	pins      map[string]string // cid string -> pin type
	bootstrap []string
	filters   []string
	keys      map[string]string // key name -> peer id
	names     map[string]string // name -> published path
	config    map[string]any
	subs      map[string]map[chan []byte]struct{}
	seqno     uint64
}

// New starts a fake daemon.
func New(t testing.TB) *Server {
	s := &Server{
		closing:   make(chan struct{}),
		calls:     map[string]int{},
		overrides: map[string]http.HandlerFunc{},
		blocks:    map[string][]byte{},
		pins:      map[string]string{},
		bootstrap: append([]string(nil), DefaultBootstrap...),
		keys:      map[string]string{"self": PeerID},
		names:     map[string]string{},
		config: map[string]any{
			"Addresses": map[string]any{"API": "/ip4/127.0.0.1/tcp/5001"},
			"Bootstrap": DefaultBootstrap,
		},
		subs: map[string]map[chan []byte]struct{}{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	if t != nil {
		t.Cleanup(s.Close)
	}
	return s
}

// URL is the API endpoint to configure a client with.
func (s *Server) URL() string { return s.srv.URL }

// Close stops streaming handlers and the server.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.closing)
		s.srv.Close()
	})
}

// Calls returns how many times command was requested.
func (s *Server) Calls(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[command]
}

// Handle replaces the built-in behavior of command.
func (s *Server) Handle(command string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[command] = h
}

// Builtin returns the fake's own handler for command, so an override can
// wrap it.
func (s *Server) Builtin(command string) http.HandlerFunc {
	return s.routes()[command]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	cmd, ok := strings.CutPrefix(r.URL.Path, "/api/v0/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	s.calls[cmd]++
	override := s.overrides[cmd]
	s.mu.Unlock()
	if override != nil {
		override(w, r)
		return
	}
	h, ok := s.routes()[cmd]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (s *Server) routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"id":      s.handleID,
		"version": s.handleVersion,
		"resolve": s.handleResolve,
		"dns":     s.handleResolve,
		"shutdown": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},

		"block/get":  s.handleBlockGet,
		"block/put":  s.handleBlockPut,
		"block/stat": s.handleBlockStat,
		"block/rm":   s.handleBlockRm,

		"object/new":   s.handleObjectNew,
		"object/get":   s.handleObjectGet,
		"object/put":   s.handleObjectPut,
		"object/data":  s.handleObjectData,
		"object/links": s.handleObjectLinks,
		"object/stat":  s.handleObjectStat,

		"add":     s.handleAdd,
		"cat":     s.handleCat,
		"file/ls": s.handleFileLs,
		"get":     s.handleGet,

		"pin/add": s.handlePinAdd,
		"pin/ls":  s.handlePinLs,
		"pin/rm":  s.handlePinRm,

		"pubsub/ls":    s.handlePubsubLs,
		"pubsub/peers": s.handlePubsubPeers,
		"pubsub/pub":   s.handlePubsubPub,
		"pubsub/sub":   s.handlePubsubSub,

		"swarm/peers":       s.handleSwarmPeers,
		"swarm/addrs":       s.handleSwarmAddrs,
		"swarm/connect":     s.handleSwarmConnect,
		"swarm/disconnect":  s.handleSwarmConnect,
		"swarm/filters":     s.handleFiltersLs,
		"swarm/filters/add": s.handleFiltersAdd,
		"swarm/filters/rm":  s.handleFiltersRm,

		"bootstrap/list":        s.handleBootstrapList,
		"bootstrap/add":         s.handleBootstrapAdd,
		"bootstrap/add/default": s.handleBootstrapDefault,
		"bootstrap/rm":          s.handleBootstrapRm,
		"bootstrap/rm/all":      s.handleBootstrapRmAll,

		"name/publish": s.handleNamePublish,
		"name/resolve": s.handleNameResolve,
		"key/gen":      s.handleKeyGen,
		"key/list":     s.handleKeyList,
		"key/rm":       s.handleKeyRm,

		"dht/findpeer":  s.handleFindPeer,
		"dht/findprovs": s.handleFindProvs,

		"config":         s.handleConfig,
		"config/show":    s.handleConfigShow,
		"config/replace": s.handleConfigReplace,

		"bitswap/wantlist": s.handleWantlist,
		"bitswap/unwant":   s.handleOK,
		"bitswap/ledger":   s.handleLedger,
		"stats/bw":         s.handleBandwidth,
		"repo/gc":          s.handleRepoGC,
		"repo/stat":        s.handleRepoStat,
		"repo/version":     s.handleRepoVersion,
	}
}

func args(r *http.Request) []string { return r.URL.Query()["arg"] }

func arg(r *http.Request) string {
	if a := args(r); len(a) > 0 {
		return a[0]
	}
	return ""
}

func flag(r *http.Request, key string) string { return r.URL.Query().Get(key) }

func boolFlag(r *http.Request, key string, def bool) bool {
	switch flag(r, key) {
	case "true":
		return true
	case "false":
		return false
	}
	return def
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"Message": msg, "Code": 0, "Type": "error"})
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// readUpload returns the first multipart file part and its unescaped name.
func readUpload(r *http.Request) ([]byte, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}
	part, err := mr.NextPart()
	if err != nil {
		return nil, "", err
	}
	defer part.Close()
	b, err := io.ReadAll(part)
	if err != nil {
		return nil, "", err
	}
	name, err := url.PathUnescape(part.FileName())
	if err != nil {
		name = part.FileName()
	}
	return b, name, nil
}
