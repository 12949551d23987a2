package progress

import (
	"errors"
	"sync"
)

// ErrSinkClosed is returned by StreamSink.Send after Close.
var ErrSinkClosed = errors.New("progress: sink closed")

// StreamSink is a one-slot mailbox for a streamed response. A new payload
// replaces one the consumer has not read yet, so a slow reader only ever sees
// the latest snapshot.
type StreamSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewStreamSink returns an open sink.
func NewStreamSink() *StreamSink {
	return &StreamSink{ch: make(chan []byte, 1)}
}

// Send implements Sink and never blocks.
func (s *StreamSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- payload
	return nil
}

// C yields payloads; it is closed by Close.
func (s *StreamSink) C() <-chan []byte {
	return s.ch
}

// Close stops the sink. It is safe to call more than once.
func (s *StreamSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

var _ Sink = (*StreamSink)(nil)
