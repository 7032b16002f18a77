package ipfstest

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/gzip"

	"xdao.co/ipfshttp/cidutil"
	"xdao.co/ipfshttp/merkle"
)

var errIsDir = errors.New("this dag node is a directory")

// AddFile stores content as a single-chunk unixfs file and returns its
// identifier.
func (s *Server) AddFile(content []byte) cid.Cid {
	return s.StoreNode(fileNode(content))
}

func fileNode(content []byte) *merkle.DagNode {
	return merkle.NewDagNode(encodeUnixfs(unixfsFile, content, uint64(len(content))), nil)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	data, name, err := readUpload(r)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	var id cid.Cid
	var size uint64
	if flag(r, "cid-version") == "1" {
		id, err = cidutil.CIDv1RawSHA256CID(data)
		if err != nil {
			writeError(w, err.Error())
			return
		}
		size = uint64(len(data))
		if !boolFlag(r, "only-hash", false) {
			s.Store(id, data)
		}
	} else {
		n := fileNode(data)
		id, size = n.Cid(), n.Size()
		if !boolFlag(r, "only-hash", false) {
			s.StoreNode(n)
		}
	}
	if name == "" {
		name = id.String()
	}
	if boolFlag(r, "pin", true) && !boolFlag(r, "only-hash", false) {
		s.mu.Lock()
		s.pins[id.String()] = "recursive"
		s.mu.Unlock()
	}

	w.Header().Set("Content-Type", "application/json")
	if boolFlag(r, "progress", false) {
		writeJSON(w, map[string]any{"Name": name, "Bytes": len(data)})
	}
	writeJSON(w, map[string]any{"Name": name, "Hash": id.String(), "Size": strconv.FormatUint(size, 10)})

	if boolFlag(r, "wrap-with-directory", false) {
		dir := merkle.NewDagNode(encodeUnixfs(unixfsDirectory, nil, 0), []merkle.Link{{Name: name, Cid: id, Size: size}})
		if !boolFlag(r, "only-hash", false) {
			s.StoreNode(dir)
		}
		writeJSON(w, map[string]any{"Name": "", "Hash": dir.Cid().String(), "Size": strconv.FormatUint(dir.Size()+size, 10)})
	}
}

// content returns the bytes of a unixfs file, concatenating chunks.
func (s *Server) content(id cid.Cid) ([]byte, error) {
	if id.Type() == cid.Raw {
		return s.block(id)
	}
	n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	u, err := decodeUnixfs(n.Data())
	if err != nil {
		return nil, err
	}
	if u.typ == unixfsDirectory {
		return nil, errIsDir
	}
	out := append([]byte(nil), u.data...)
	for _, l := range n.Links() {
		b, err := s.content(l.Cid)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (s *Server) handleCat(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolve(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	b, err := s.content(id)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(b)
}

type fileEntry struct {
	Name string `json:",omitempty"`
	Hash string
	Size uint64
	Type string
}

type fileObject struct {
	Hash  string
	Size  uint64
	Type  string
	Links []fileEntry
}

func (s *Server) describe(id cid.Cid) (isDir bool, size uint64, n *merkle.DagNode, err error) {
	if id.Type() == cid.Raw {
		b, err := s.block(id)
		return false, uint64(len(b)), nil, err
	}
	n, err = s.node(id)
	if err != nil {
		return false, 0, nil, err
	}
	u, err := decodeUnixfs(n.Data())
	if err != nil {
		return false, 0, nil, err
	}
	if u.typ == unixfsDirectory {
		return true, 0, n, nil
	}
	return false, u.filesize, n, nil
}

func fileType(isDir bool) string {
	if isDir {
		return "Directory"
	}
	return "File"
}

func (s *Server) handleFileLs(w http.ResponseWriter, r *http.Request) {
	p := arg(r)
	id, err := s.resolve(p)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	isDir, size, n, err := s.describe(id)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	obj := fileObject{Hash: id.String(), Size: size, Type: fileType(isDir), Links: []fileEntry{}}
	if isDir {
		for _, l := range n.Links() {
			childDir, childSize, _, err := s.describe(l.Cid)
			if err != nil {
				writeError(w, err.Error())
				return
			}
			obj.Links = append(obj.Links, fileEntry{Name: l.Name, Hash: l.Cid.String(), Size: childSize, Type: fileType(childDir)})
		}
	}
	writeJSON(w, map[string]any{
		"Arguments": map[string]string{p: id.String()},
		"Objects":   map[string]fileObject{id.String(): obj},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolve(arg(r))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := s.writeTar(tw, id.String(), id); err != nil {
		writeError(w, err.Error())
		return
	}
	if err := tw.Close(); err != nil {
		writeError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-tar")
	if !boolFlag(r, "compress", false) {
		_, _ = io.Copy(w, &buf)
		return
	}
	zw := gzip.NewWriter(w)
	_, _ = io.Copy(zw, &buf)
	_ = zw.Close()
}

func (s *Server) writeTar(tw *tar.Writer, name string, id cid.Cid) error {
	isDir, _, n, err := s.describe(id)
	if err != nil {
		return err
	}
	if isDir {
		if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: name + "/", Mode: 0o755}); err != nil {
			return err
		}
		for _, l := range n.Links() {
			if err := s.writeTar(tw, path.Join(name, l.Name), l.Cid); err != nil {
				return err
			}
		}
		return nil
	}
	b, err := s.content(id)
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Size: int64(len(b))}); err != nil {
		return err
	}
	_, err = tw.Write(b)
	return err
}
