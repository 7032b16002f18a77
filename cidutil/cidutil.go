package cidutil

import (
	"errors"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	// ErrEmptyPath is returned when a path or identifier string is blank.
	ErrEmptyPath = errors.New("cidutil: empty path")
	// ErrMismatch is returned when bytes do not hash to the expected CID.
	ErrMismatch = errors.New("cidutil: cid mismatch")
	// ErrUndefined is returned when a zero-value CID is supplied.
	ErrUndefined = errors.New("cidutil: undefined cid")
)

// IPFSPathPrefix is the namespace prefix stripped by ParsePath.
const IPFSPathPrefix = "/ipfs/"

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// CIDv0 returns the legacy (dag-pb, sha2-256, base58btc) CID of data.
//
// This is the identifier the remote node assigns to serialized DAG nodes
// and, with default block options, to raw blocks.
func CIDv0(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV0(sum), nil
}

// Verify reports whether data hashes to id under id's own prefix
// (version, codec and multihash).
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrUndefined
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrMismatch
	}
	return nil
}

// ParsePath decodes an identifier given either bare ("Qm...") or as an
// IPFS path ("/ipfs/Qm..."). Anything after the identifier segment is
// rejected.
func ParsePath(s string) (cid.Cid, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, IPFSPathPrefix)
	if s == "" {
		return cid.Undef, ErrEmptyPath
	}
	return cid.Decode(s)
}

// MultihashName returns the canonical multihash name for code, or "" when
// the code is unknown.
func MultihashName(code uint64) string {
	return multihash.Codes[code]
}
