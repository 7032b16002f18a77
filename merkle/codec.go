package merkle

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"
)

// dag-pb field numbers.
//
//	message PBLink { bytes Hash = 1; string Name = 2; uint64 Tsize = 3; }
//	message PBNode { repeated PBLink Links = 2; bytes Data = 1; }
const (
	fieldNodeData  protowire.Number = 1
	fieldNodeLinks protowire.Number = 2
	fieldLinkHash  protowire.Number = 1
	fieldLinkName  protowire.Number = 2
	fieldLinkSize  protowire.Number = 3
)

// encodeDagPB writes the canonical dag-pb form: every link (in the order
// given) before the data field, Name and Tsize always present, Data omitted
// when empty.
func encodeDagPB(data []byte, links []Link) []byte {
	var out []byte
	for _, l := range links {
		var lb []byte
		if l.Cid.Defined() {
			lb = protowire.AppendTag(lb, fieldLinkHash, protowire.BytesType)
			lb = protowire.AppendBytes(lb, l.Cid.Bytes())
		}
		lb = protowire.AppendTag(lb, fieldLinkName, protowire.BytesType)
		lb = protowire.AppendString(lb, l.Name)
		lb = protowire.AppendTag(lb, fieldLinkSize, protowire.VarintType)
		lb = protowire.AppendVarint(lb, l.Size)

		out = protowire.AppendTag(out, fieldNodeLinks, protowire.BytesType)
		out = protowire.AppendBytes(out, lb)
	}
	if len(data) > 0 {
		out = protowire.AppendTag(out, fieldNodeData, protowire.BytesType)
		out = protowire.AppendBytes(out, data)
	}
	return out
}

func decodeDagPB(b []byte) ([]byte, []Link, error) {
	var (
		data  []byte
		links []Link
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldNodeData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, malformed(protowire.ParseError(n))
			}
			data = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldNodeLinks && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, malformed(protowire.ParseError(n))
			}
			l, err := decodeLink(v)
			if err != nil {
				return nil, nil, err
			}
			links = append(links, l)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return data, links, nil
}

func decodeLink(b []byte) (Link, error) {
	var l Link
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Link{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldLinkHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Link{}, malformed(protowire.ParseError(n))
			}
			id, err := cid.Cast(v)
			if err != nil {
				return Link{}, malformed(err)
			}
			l.Cid = id
			b = b[n:]
		case num == fieldLinkName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Link{}, malformed(protowire.ParseError(n))
			}
			l.Name = v
			b = b[n:]
		case num == fieldLinkSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Link{}, malformed(protowire.ParseError(n))
			}
			l.Size = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Link{}, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return l, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedNode, err)
}
