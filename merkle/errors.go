package merkle

import (
	"errors"

	"xdao.co/ipfshttp/cidutil"
)

var (
	// ErrInvalidCid is returned when a shell is constructed without a
	// defined identifier.
	ErrInvalidCid = errors.New("merkle: invalid cid")
	// ErrEmptyPath is returned when a shell is constructed from a blank path.
	ErrEmptyPath = cidutil.ErrEmptyPath
	// ErrMalformedNode is returned when bytes are not a valid dag-pb node.
	ErrMalformedNode = errors.New("merkle: malformed dag-pb node")
	// ErrNoFetcher is returned when a lazy field is read on a shell that was
	// built without a Fetcher.
	ErrNoFetcher = errors.New("merkle: node has no fetcher")
)
