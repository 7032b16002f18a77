package pubsub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"github.com/tidwall/gjson"

	"xdao.co/ipfshttp/rpc"
)

// Handler receives each message on the listener's goroutine. A panic in the
// handler is recovered and logged; the loop keeps going.
type Handler func(*Message)

type State int32

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Subscription is a running listener. It ends when the remote closes the
// stream, a line cannot be read or parsed, or the context is cancelled.
type Subscription struct {
	topic  string
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	mu  sync.Mutex
	err error
}

// Listen starts delivering messages read from body to handler and returns
// immediately. Listen owns body and closes it when the loop ends.
//
// The line reader cannot observe ctx, so cancellation closes body out from
// under it. A read error that follows cancellation is a clean exit.
func Listen(ctx context.Context, topic string, body io.ReadCloser, handler Handler, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{topic: topic, cancel: cancel, done: make(chan struct{})}
	s.state.Store(int32(Listening))

	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	go func() {
		defer close(s.done)
		defer s.state.Store(int32(Idle))
		defer cancel()
		defer stop()
		defer body.Close()

		err := rpc.ReadLines(body, func(line json.RawMessage) error {
			if ctx.Err() != nil {
				return rpc.ErrStopStream
			}
			if isPlaceholder(line) {
				return nil
			}
			msg, err := ParseMessage(line)
			if err != nil {
				return err
			}
			deliver(topic, handler, msg, logger)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("pubsub listener stopped", "topic", topic, "error", err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// isPlaceholder matches the empty object older daemons send first.
func isPlaceholder(line []byte) bool {
	r := gjson.ParseBytes(line)
	if !r.IsObject() {
		return false
	}
	empty := true
	r.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

func deliver(topic string, handler Handler, msg *Message, logger *slog.Logger) {
	var pc panics.Catcher
	pc.Try(func() { handler(msg) })
	if r := pc.Recovered(); r != nil {
		logger.Warn("pubsub handler panicked", "topic", topic, "error", r.AsError())
	}
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Done is closed when the loop has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is the error that ended the loop, or nil after a remote close or a
// cancellation. It is only meaningful once Done is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the loop and waits for it to end.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
