// Package pubsub models messages received on the node's publish/subscribe
// topics and the background loop that delivers them.
package pubsub

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
)

var (
	// ErrNotContentAddressed is returned by Message.Cid. Messages have no
	// identifier.
	ErrNotContentAddressed = errors.New("pubsub: message is not content addressed")
	ErrMalformedMessage    = errors.New("pubsub: malformed message")
)

// Message is one published message. It is immutable.
type Message struct {
	sender peer.ID
	seqno  []byte
	data   []byte
	topics []string
}

type wireMessage struct {
	From     string   `json:"from"`
	Seqno    string   `json:"seqno"`
	Data     string   `json:"data"`
	TopicIDs []string `json:"topicIDs"`
}

// ParseMessage decodes one ndjson record. Byte fields are base64; the sender
// is either base64 peer id bytes or an encoded peer id string.
func ParseMessage(line []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	sender, err := decodeSender(w.From)
	if err != nil {
		return nil, err
	}
	seqno, err := decodeField("seqno", w.Seqno)
	if err != nil {
		return nil, err
	}
	data, err := decodeField("data", w.Data)
	if err != nil {
		return nil, err
	}
	return &Message{
		sender: sender,
		seqno:  seqno,
		data:   data,
		topics: append([]string(nil), w.TopicIDs...),
	}, nil
}

func decodeSender(s string) (peer.ID, error) {
	if s == "" {
		return "", nil
	}
	if id, err := peer.Decode(s); err == nil {
		return id, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: from: %v", ErrMalformedMessage, err)
	}
	id, err := peer.IDFromBytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: from: %v", ErrMalformedMessage, err)
	}
	return id, nil
}

func decodeField(name, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, name, err)
	}
	return b, nil
}

func (m *Message) Sender() peer.ID { return m.sender }

// SequenceNumber is the sender's opaque, monotonic sequence number.
func (m *Message) SequenceNumber() []byte { return append([]byte(nil), m.seqno...) }

func (m *Message) Data() []byte { return append([]byte(nil), m.data...) }

func (m *Message) DataStream() io.Reader { return bytes.NewReader(m.data) }

func (m *Message) Topics() []string { return append([]string(nil), m.topics...) }

// Size is the payload length.
func (m *Message) Size() uint64 { return uint64(len(m.data)) }

// Cid always fails: messages are not content addressed.
func (m *Message) Cid() (cid.Cid, error) {
	return cid.Undef, ErrNotContentAddressed
}
