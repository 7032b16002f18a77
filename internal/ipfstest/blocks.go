package ipfstest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/ipfshttp/merkle"
)

var errNotFound = errors.New("block was not found locally (offline)")

// Store puts a block directly, bypassing the API.
func (s *Server) Store(id cid.Cid, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[string(id.Hash())] = append([]byte(nil), data...)
}

// StoreNode puts a dag-pb node directly and returns its identifier.
func (s *Server) StoreNode(n *merkle.DagNode) cid.Cid {
	s.Store(n.Cid(), n.Encode())
	return n.Cid()
}

// Has reports whether a block with id's multihash is stored.
func (s *Server) Has(id cid.Cid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[string(id.Hash())]
	return ok
}

func (s *Server) block(id cid.Cid) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[string(id.Hash())]
	if !ok {
		return nil, errNotFound
	}
	return b, nil
}

func (s *Server) node(id cid.Cid) (*merkle.DagNode, error) {
	if id.Type() != cid.DagProtobuf {
		return nil, fmt.Errorf("unsupported codec %d for %s", id.Type(), id)
	}
	b, err := s.block(id)
	if err != nil {
		return nil, err
	}
	return merkle.DecodeDagNode(b)
}

// resolve walks "<cid>/<name>/<name>" through dag-pb links.
func (s *Server) resolve(p string) (cid.Cid, error) {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/ipfs/")
	parts := strings.Split(strings.Trim(p, "/"), "/")
	id, err := cid.Decode(parts[0])
	if err != nil {
		return cid.Undef, fmt.Errorf("invalid path %q: %w", p, err)
	}
	for _, name := range parts[1:] {
		n, err := s.node(id)
		if err != nil {
			return cid.Undef, err
		}
		found := false
		for _, l := range n.Links() {
			if l.Name == name {
				id, found = l.Cid, true
				break
			}
		}
		if !found {
			return cid.Undef, fmt.Errorf("no link named %q under %s", name, id)
		}
	}
	return id, nil
}

func (s *Server) handleBlockGet(w http.ResponseWriter, r *http.Request) {
	id, err := cid.Decode(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	b, err := s.block(id)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}

func (s *Server) handleBlockPut(w http.ResponseWriter, r *http.Request) {
	data, _, err := readUpload(r)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	mhtype := flag(r, "mhtype")
	if mhtype == "" {
		mhtype = "sha2-256"
	}
	code, ok := mh.Names[mhtype]
	if !ok {
		writeError(w, "unrecognized multihash function: "+mhtype)
		return
	}
	hash, err := mh.Sum(data, code, -1)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	var id cid.Cid
	switch format := flag(r, "format"); format {
	case "", "v0":
		if code == mh.SHA2_256 {
			id = cid.NewCidV0(hash)
		} else {
			id = cid.NewCidV1(cid.DagProtobuf, hash)
		}
	case "raw":
		id = cid.NewCidV1(cid.Raw, hash)
	case "protobuf", "dag-pb":
		id = cid.NewCidV1(cid.DagProtobuf, hash)
	case "cbor", "dag-cbor":
		id = cid.NewCidV1(cid.DagCBOR, hash)
	default:
		writeError(w, "unrecognized format: "+format)
		return
	}

	key, err := encodeKey(id, flag(r, "cid-base"))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	s.Store(id, data)
	if boolFlag(r, "pin", false) {
		s.mu.Lock()
		s.pins[id.String()] = "recursive"
		s.mu.Unlock()
	}
	writeJSON(w, map[string]any{"Key": key, "Size": len(data)})
}

// encodeKey renders version 1 identifiers in base58btc unless a base is
// requested, as older daemons did.
func encodeKey(id cid.Cid, base string) (string, error) {
	if id.Version() == 0 {
		return id.String(), nil
	}
	var enc multibase.Encoding = multibase.Base58BTC
	if base != "" {
		e, ok := multibase.Encodings[base]
		if !ok {
			return "", fmt.Errorf("unknown cid-base %q", base)
		}
		enc = e
	}
	return id.StringOfBase(enc)
}

func (s *Server) handleBlockStat(w http.ResponseWriter, r *http.Request) {
	id, err := cid.Decode(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	b, err := s.block(id)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	writeJSON(w, map[string]any{"Key": arg(r), "Size": len(b)})
}

func (s *Server) handleBlockRm(w http.ResponseWriter, r *http.Request) {
	force := boolFlag(r, "force", false)
	for _, a := range args(r) {
		id, err := cid.Decode(a)
		if err != nil {
			writeError(w, err.Error())
			return
		}
		s.mu.Lock()
		_, ok := s.blocks[string(id.Hash())]
		delete(s.blocks, string(id.Hash()))
		s.mu.Unlock()
		switch {
		case ok:
			writeJSON(w, map[string]any{"Hash": a})
		case !force:
			writeJSON(w, map[string]any{"Hash": a, "Error": "blockstore: block not found"})
		}
	}
}

type wireLink struct {
	Name string
	Hash string
	Size uint64
}

func wireLinks(links []merkle.Link) []wireLink {
	out := make([]wireLink, 0, len(links))
	for _, l := range links {
		out = append(out, wireLink{Name: l.Name, Hash: l.Cid.String(), Size: l.Size})
	}
	return out
}

func (s *Server) handleObjectNew(w http.ResponseWriter, r *http.Request) {
	var n *merkle.DagNode
	switch tmpl := arg(r); tmpl {
	case "":
		n = merkle.NewDagNode(nil, nil)
	case "unixfs-dir":
		n = merkle.NewDagNode(encodeUnixfs(unixfsDirectory, nil, 0), nil)
	default:
		writeError(w, "template '"+tmpl+"' not found")
		return
	}
	writeJSON(w, map[string]any{"Hash": s.StoreNode(n).String()})
}

func (s *Server) objectArg(w http.ResponseWriter, r *http.Request) (*merkle.DagNode, bool) {
	id, err := s.resolve(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return nil, false
	}
	n, err := s.node(id)
	if err != nil {
		writeError(w, err.Error())
		return nil, false
	}
	return n, true
}

func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	n, ok := s.objectArg(w, r)
	if !ok {
		return
	}
	data := string(n.Data())
	if flag(r, "data-encoding") == "base64" {
		data = base64.StdEncoding.EncodeToString(n.Data())
	}
	writeJSON(w, map[string]any{"Links": wireLinks(n.Links()), "Data": data})
}

func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	if enc := flag(r, "inputenc"); enc != "protobuf" {
		writeError(w, "unsupported input encoding: "+enc)
		return
	}
	b, _, err := readUpload(r)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	n, err := merkle.DecodeDagNode(b)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	id := s.StoreNode(n)
	writeJSON(w, map[string]any{"Hash": id.String(), "Links": wireLinks(n.Links())})
}

func (s *Server) handleObjectData(w http.ResponseWriter, r *http.Request) {
	n, ok := s.objectArg(w, r)
	if !ok {
		return
	}
	_, _ = w.Write(n.Data())
}

func (s *Server) handleObjectLinks(w http.ResponseWriter, r *http.Request) {
	n, ok := s.objectArg(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{"Hash": n.Cid().String(), "Links": wireLinks(n.Links())})
}

func (s *Server) handleObjectStat(w http.ResponseWriter, r *http.Request) {
	n, ok := s.objectArg(w, r)
	if !ok {
		return
	}
	cumulative := n.Size()
	for _, l := range n.Links() {
		cumulative += l.Size
	}
	writeJSON(w, map[string]any{
		"Hash":           n.Cid().String(),
		"NumLinks":       len(n.Links()),
		"BlockSize":      n.Size(),
		"LinksSize":      n.Size() - uint64(len(n.Data())),
		"DataSize":       len(n.Data()),
		"CumulativeSize": cumulative,
	})
}

const (
	unixfsDirectory = 1
	unixfsFile      = 2
)

// encodeUnixfs renders the unixfs Data message: Type=1, Data=2, filesize=3.
// Directories carry only their type.
func encodeUnixfs(typ uint64, data []byte, filesize uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, typ)
	if typ == unixfsDirectory {
		return b
	}
	if len(data) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, data)
	}
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, filesize)
	return b
}

type unixfsData struct {
	typ      uint64
	data     []byte
	filesize uint64
}

func decodeUnixfs(b []byte) (unixfsData, error) {
	var u unixfsData
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			u.typ, n = protowire.ConsumeVarint(b)
		case num == 2 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			u.data = append([]byte(nil), v...)
		case num == 3 && typ == protowire.VarintType:
			u.filesize, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return u, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return u, nil
}
