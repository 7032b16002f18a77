package ipfstest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"slices"
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Peers reported by swarm/peers and the DHT handlers.
var Peers = []struct{ Addr, ID string }{
	{"/ip4/104.131.131.82/tcp/4001", "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"},
	{"/ip4/147.75.83.83/tcp/4001", "QmbLHAnMoJPWSCR5Zhtx6BHJX9KiKNN6tpvbUcqanj75Nb"},
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	id := arg(r)
	if id == "" {
		id = PeerID
	}
	writeJSON(w, map[string]any{
		"ID":              id,
		"PublicKey":       "CAASpgIwggEiMA0GCSqGSIb3DQEBAQUAA4IBDwAwggEKAoIBAQC",
		"Addresses":       []string{"/ip4/127.0.0.1/tcp/4001/p2p/" + id},
		"AgentVersion":    "kubo/0.29.0/",
		"ProtocolVersion": "ipfs/0.1.0",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"Version": "0.29.0",
		"Commit":  "",
		"Repo":    "15",
		"System":  "amd64/linux",
		"Golang":  "go1.22.4",
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := arg(r)
	s.mu.Lock()
	target, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		if _, err := s.resolve(name); err != nil {
			writeError(w, "could not resolve name")
			return
		}
		target = name
	}
	writeJSON(w, map[string]any{"Path": target})
}

func (s *Server) handlePinAdd(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolve(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	typ := "recursive"
	if !boolFlag(r, "recursive", true) {
		typ = "direct"
	}
	s.mu.Lock()
	s.pins[id.String()] = typ
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Pins": []string{id.String()}})
}

func (s *Server) handlePinLs(w http.ResponseWriter, r *http.Request) {
	keys := map[string]any{}
	s.mu.Lock()
	for k, typ := range s.pins {
		if want := flag(r, "type"); want != "" && want != "all" && want != typ {
			continue
		}
		keys[k] = map[string]string{"Type": typ}
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Keys": keys})
}

func (s *Server) handlePinRm(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolve(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	s.mu.Lock()
	_, ok := s.pins[id.String()]
	delete(s.pins, id.String())
	s.mu.Unlock()
	if !ok {
		writeError(w, "not pinned or pinned indirectly")
		return
	}
	writeJSON(w, map[string]any{"Pins": []string{id.String()}})
}

func (s *Server) handlePubsubLs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	topics := make([]string, 0, len(s.subs))
	for t, subs := range s.subs {
		if len(subs) > 0 {
			topics = append(topics, t)
		}
	}
	s.mu.Unlock()
	sort.Strings(topics)
	writeJSON(w, map[string]any{"Strings": topics})
}

func (s *Server) handlePubsubPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"Strings": []string{Peers[0].ID}})
}

// Publish delivers data on topic to every current subscriber.
func (s *Server) Publish(topic string, data []byte) {
	self, _ := peer.Decode(PeerID)

	s.mu.Lock()
	s.seqno++
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, s.seqno)
	line, _ := json.Marshal(map[string]any{
		"from":     base64.StdEncoding.EncodeToString([]byte(self)),
		"seqno":    base64.StdEncoding.EncodeToString(seq),
		"data":     base64.StdEncoding.EncodeToString(data),
		"topicIDs": []string{topic},
	})
	subs := make([]chan []byte, 0, len(s.subs[topic]))
	for ch := range s.subs[topic] {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- line:
		case <-s.closing:
		}
	}
}

// Subscribers returns how many listeners are attached to topic.
func (s *Server) Subscribers(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[topic])
}

func (s *Server) handlePubsubPub(w http.ResponseWriter, r *http.Request) {
	a := args(r)
	if len(a) != 2 {
		writeError(w, "argument \"data\" is required")
		return
	}
	s.Publish(a[0], []byte(a[1]))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePubsubSub(w http.ResponseWriter, r *http.Request) {
	topic := arg(r)
	ch := make(chan []byte, 16)
	s.mu.Lock()
	if s.subs[topic] == nil {
		s.subs[topic] = map[chan []byte]struct{}{}
	}
	s.subs[topic][ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs[topic], ch)
		s.mu.Unlock()
	}()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}\n"))
	if flusher != nil {
		flusher.Flush()
	}
	for {
		select {
		case line := <-ch:
			if _, err := w.Write(append(line, '\n')); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		}
	}
}

// SetSwarmPeersResponse replaces the swarm/peers body, e.g. with a legacy
// or unknown shape.
func (s *Server) SetSwarmPeersResponse(body string) {
	s.Handle("swarm/peers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func (s *Server) handleSwarmPeers(w http.ResponseWriter, r *http.Request) {
	peers := make([]map[string]any, 0, len(Peers))
	for _, p := range Peers {
		peers = append(peers, map[string]any{
			"Addr": p.Addr, "Peer": p.ID, "Latency": "23.5ms", "Muxer": "", "Streams": nil,
		})
	}
	writeJSON(w, map[string]any{"Peers": peers})
}

func (s *Server) handleSwarmAddrs(w http.ResponseWriter, r *http.Request) {
	addrs := map[string][]string{}
	for _, p := range Peers {
		addrs[p.ID] = append(addrs[p.ID], p.Addr)
	}
	writeJSON(w, map[string]any{"Addrs": addrs})
}

func (s *Server) handleSwarmConnect(w http.ResponseWriter, r *http.Request) {
	out := make([]string, 0, len(args(r)))
	for _, a := range args(r) {
		out = append(out, "connect "+a+" success")
	}
	writeJSON(w, map[string]any{"Strings": out})
}

func (s *Server) handleFiltersLs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]string{}, s.filters...)
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Strings": out})
}

func (s *Server) handleFiltersAdd(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.filters = append(s.filters, args(r)...)
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Strings": args(r)})
}

func (s *Server) handleFiltersRm(w http.ResponseWriter, r *http.Request) {
	removed := []string{}
	s.mu.Lock()
	s.filters = slices.DeleteFunc(s.filters, func(f string) bool {
		if slices.Contains(args(r), f) {
			removed = append(removed, f)
			return true
		}
		return false
	})
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Strings": removed})
}

func (s *Server) handleBootstrapList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]string{}, s.bootstrap...)
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Peers": out})
}

func (s *Server) handleBootstrapAdd(w http.ResponseWriter, r *http.Request) {
	added := []string{}
	s.mu.Lock()
	for _, a := range args(r) {
		if !slices.Contains(s.bootstrap, a) {
			s.bootstrap = append(s.bootstrap, a)
			added = append(added, a)
		}
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Peers": added})
}

func (s *Server) handleBootstrapDefault(w http.ResponseWriter, r *http.Request) {
	added := []string{}
	s.mu.Lock()
	for _, a := range DefaultBootstrap {
		if !slices.Contains(s.bootstrap, a) {
			s.bootstrap = append(s.bootstrap, a)
			added = append(added, a)
		}
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Peers": added})
}

func (s *Server) handleBootstrapRm(w http.ResponseWriter, r *http.Request) {
	removed := []string{}
	s.mu.Lock()
	s.bootstrap = slices.DeleteFunc(s.bootstrap, func(b string) bool {
		if slices.Contains(args(r), b) {
			removed = append(removed, b)
			return true
		}
		return false
	})
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Peers": removed})
}

func (s *Server) handleBootstrapRmAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	removed := s.bootstrap
	s.bootstrap = nil
	s.mu.Unlock()
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, map[string]any{"Peers": removed})
}

func (s *Server) handleFindPeer(w http.ResponseWriter, r *http.Request) {
	want := arg(r)
	i := slices.IndexFunc(Peers, func(p struct{ Addr, ID string }) bool { return p.ID == want })
	if i < 0 {
		writeError(w, "routing: not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	// Type 0 is a query event; only Type 2 carries the answer.
	writeJSON(w, map[string]any{"ID": Peers[0].ID, "Type": 0, "Responses": nil, "Extra": ""})
	writeJSON(w, map[string]any{
		"ID": "", "Type": 2, "Extra": "",
		"Responses": []map[string]any{{"ID": Peers[i].ID, "Addrs": []string{Peers[i].Addr}}},
	})
}

func (s *Server) handleFindProvs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	for _, p := range Peers {
		writeJSON(w, map[string]any{"ID": p.ID, "Type": 1, "Responses": nil, "Extra": ""})
		writeJSON(w, map[string]any{
			"ID": "", "Type": 4, "Extra": "",
			"Responses": []map[string]any{{"ID": p.ID, "Addrs": []string{p.Addr}}},
		})
	}
}
