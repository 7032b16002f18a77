package ipfstest

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Keys the fake hands out from key/gen, in order.
var generatedKeys = []string{
	"QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt",
	"QmbLHAnMoJPWSCR5Zhtx6BHJX9KiKNN6tpvbUcqanj75Nb",
	"QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ",
}

func (s *Server) handleNamePublish(w http.ResponseWriter, r *http.Request) {
	value := arg(r)
	key := flag(r, "key")
	if key == "" {
		key = "self"
	}
	s.mu.Lock()
	id, ok := s.keys[key]
	if ok {
		s.names["/ipns/"+id] = value
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, "no key by the given name was found")
		return
	}
	writeJSON(w, map[string]any{"Name": id, "Value": value})
}

func (s *Server) handleNameResolve(w http.ResponseWriter, r *http.Request) {
	name := arg(r)
	if name == "" {
		name = PeerID
	}
	if !strings.HasPrefix(name, "/ipns/") {
		name = "/ipns/" + name
	}
	s.mu.Lock()
	value, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, "could not resolve name")
		return
	}
	writeJSON(w, map[string]any{"Path": value})
}

func (s *Server) handleKeyGen(w http.ResponseWriter, r *http.Request) {
	name := arg(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[name]; ok {
		writeError(w, "key with name '"+name+"' already exists")
		return
	}
	id := generatedKeys[(len(s.keys)-1)%len(generatedKeys)]
	s.keys[name] = id
	writeJSON(w, map[string]any{"Name": name, "Id": id})
}

func (s *Server) keyList() []map[string]string {
	out := make([]map[string]string, 0, len(s.keys))
	for name, id := range s.keys {
		out = append(out, map[string]string{"Name": name, "Id": id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["Name"] < out[j]["Name"] })
	return out
}

func (s *Server) handleKeyList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	keys := s.keyList()
	s.mu.Unlock()
	writeJSON(w, map[string]any{"Keys": keys})
}

func (s *Server) handleKeyRm(w http.ResponseWriter, r *http.Request) {
	name := arg(r)
	s.mu.Lock()
	id, ok := s.keys[name]
	if ok && name != "self" {
		delete(s.keys, name)
	}
	s.mu.Unlock()
	if !ok || name == "self" {
		writeError(w, "no key named "+name+" was found")
		return
	}
	writeJSON(w, map[string]any{"Keys": []map[string]string{{"Name": name, "Id": id}}})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	a := args(r)
	if len(a) == 0 {
		writeError(w, "argument \"key\" is required")
		return
	}
	key := a[0]
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(a) > 1 {
		var value any = a[1]
		if boolFlag(r, "json", false) {
			if err := json.Unmarshal([]byte(a[1]), &value); err != nil {
				writeError(w, "failed to unmarshal json. "+err.Error())
				return
			}
		}
		setPath(s.config, strings.Split(key, "."), value)
		writeJSON(w, map[string]any{"Key": key, "Value": value})
		return
	}
	value, ok := getPath(s.config, strings.Split(key, "."))
	if !ok {
		writeError(w, "key has no attributes")
		return
	}
	writeJSON(w, map[string]any{"Key": key, "Value": value})
}

func getPath(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func (s *Server) handleConfigShow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.config)
}

func (s *Server) handleConfigReplace(w http.ResponseWriter, r *http.Request) {
	b, _, err := readUpload(r)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	var cfg map[string]any
	if err := json.Unmarshal(b, &cfg); err != nil {
		writeError(w, err.Error())
		return
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWantlist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"Keys": []map[string]string{{"/": "QmdfTbBqBPQ7VNxZEYEj14VmRuZBkqFbiwReogJgS1zR1n"}}})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"Peer": arg(r), "Value": 0.5, "Sent": 1024, "Recv": 2048, "Exchanged": 3})
}

func (s *Server) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"TotalIn": 4096, "TotalOut": 8192, "RateIn": 12.5, "RateOut": 25.0})
}

func (s *Server) handleRepoGC(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pinned := map[string]bool{}
	for k := range s.pins {
		if id, err := cid.Decode(k); err == nil {
			pinned[string(id.Hash())] = true
		}
	}
	var removed []string
	for k := range s.blocks {
		if !pinned[k] {
			removed = append(removed, cid.NewCidV1(cid.Raw, mh.Multihash(k)).String())
			delete(s.blocks, k)
		}
	}
	s.mu.Unlock()

	sort.Strings(removed)
	w.Header().Set("Content-Type", "application/json")
	for _, id := range removed {
		writeJSON(w, map[string]any{"Key": map[string]string{"/": id}})
	}
}

func (s *Server) handleRepoStat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var size int
	for _, b := range s.blocks {
		size += len(b)
	}
	n := len(s.blocks)
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"RepoSize": size, "StorageMax": 10_000_000_000, "NumObjects": n,
		"RepoPath": "/tmp/ipfstest", "Version": "fs-repo@15",
	})
}

func (s *Server) handleRepoVersion(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, `{"Version":"15"}`+"\n")
}
