package pubsub

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootstrapPeer = "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func wireLine(t *testing.T, data string) string {
	t.Helper()
	id, err := peer.Decode(bootstrapPeer)
	require.NoError(t, err)
	return fmt.Sprintf(`{"from":%q,"seqno":%q,"data":%q,"topicIDs":["news"]}`+"\n",
		b64(string(id)), b64("\x00\x01"), b64(data))
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(wireLine(t, "hello")))
	require.NoError(t, err)
	assert.Equal(t, bootstrapPeer, msg.Sender().String())
	assert.Equal(t, []byte{0, 1}, msg.SequenceNumber())
	assert.Equal(t, "hello", string(msg.Data()))
	assert.Equal(t, []string{"news"}, msg.Topics())
	assert.Equal(t, uint64(5), msg.Size())

	b, err := io.ReadAll(msg.DataStream())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestParseMessageAcceptsStringSender(t *testing.T) {
	line := fmt.Sprintf(`{"from":%q,"data":%q,"topicIDs":["a","b"]}`, bootstrapPeer, b64("x"))
	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, bootstrapPeer, msg.Sender().String())
	assert.Empty(t, msg.SequenceNumber())
}

func TestParseMessageRejectsBadInput(t *testing.T) {
	_, err := ParseMessage([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = ParseMessage([]byte(`{"data":"***"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestMessageCidFailsDistinctly(t *testing.T) {
	msg, err := ParseMessage([]byte(wireLine(t, "x")))
	require.NoError(t, err)
	_, err = msg.Cid()
	assert.ErrorIs(t, err, ErrNotContentAddressed)
	assert.NoError(t, msg.Sender().Validate())
}

func TestMessageIsImmutable(t *testing.T) {
	msg, err := ParseMessage([]byte(wireLine(t, "abc")))
	require.NoError(t, err)
	d := msg.Data()
	d[0] = 'z'
	assert.Equal(t, "abc", string(msg.Data()))
}

func TestListenerSkipsPlaceholderAndDelivers(t *testing.T) {
	pr, pw := io.Pipe()
	var got atomic.Int32
	received := make(chan *Message, 4)

	sub := Listen(context.Background(), "news", pr, func(m *Message) {
		got.Add(1)
		received <- m
	}, nil)
	assert.Equal(t, Listening, sub.State())

	_, err := io.WriteString(pw, "{}\n")
	require.NoError(t, err)
	_, err = io.WriteString(pw, wireLine(t, "one"))
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.Equal(t, "one", string(m.Data()))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, pw.Close())
	<-sub.Done()
	assert.NoError(t, sub.Err())
	assert.Equal(t, Idle, sub.State())
	assert.Equal(t, int32(1), got.Load())
}

func TestListenerSurvivesHandlerPanic(t *testing.T) {
	pr, pw := io.Pipe()
	var calls atomic.Int32

	sub := Listen(context.Background(), "t", pr, func(m *Message) {
		if calls.Add(1) == 1 {
			panic("handler bug")
		}
	}, nil)

	_, err := io.WriteString(pw, wireLine(t, "1"))
	require.NoError(t, err)
	_, err = io.WriteString(pw, wireLine(t, "2"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	<-sub.Done()
	assert.NoError(t, sub.Err())
	assert.Equal(t, int32(2), calls.Load())
}

func TestListenerCancellationIsCleanExit(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	sub := Listen(ctx, "t", pr, func(*Message) { calls.Add(1) }, nil)
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}
	assert.NoError(t, sub.Err())

	// The reader end is closed; nothing more can be delivered.
	_, err := io.WriteString(pw, wireLine(t, "late"))
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestListenerRecordsParseFailure(t *testing.T) {
	pr, pw := io.Pipe()
	var calls atomic.Int32
	sub := Listen(context.Background(), "t", pr, func(*Message) { calls.Add(1) }, nil)

	late := wireLine(t, "never")
	go func() {
		_, _ = io.WriteString(pw, "garbage\n")
		_, _ = io.WriteString(pw, late)
		_ = pw.Close()
	}()

	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), ErrMalformedMessage)
	assert.Zero(t, calls.Load())
}

func TestSubscriptionClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	sub := Listen(context.Background(), "t", pr, func(*Message) {}, nil)
	require.NoError(t, sub.Close())
	assert.Equal(t, Idle, sub.State())
	assert.NoError(t, sub.Err())
}
