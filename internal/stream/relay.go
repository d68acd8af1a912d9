package stream

import (
	"context"
	"sync"
)

// Relay carries generation output to a consumer as an ordered sequence of
// text fragments with an explicit terminal signal. A relay closed with a
// non-nil error lets the consumer distinguish a mid-stream failure from a
// clean completion, which a bare channel close cannot.
//
// Send and Close belong to a single producer goroutine; the consumer side
// may be read from anywhere.
type Relay struct {
	fragments chan string

	mu     sync.Mutex
	closed bool
	err    error
}

func NewRelay(buffer int) *Relay {
	if buffer < 0 {
		buffer = 0
	}
	return &Relay{
		fragments: make(chan string, buffer),
	}
}

// Send delivers one fragment. Fragments arrive at the consumer in Send
// order. Sending after Close is an error on the producer's part and is
// silently dropped to keep shutdown races harmless.
func (r *Relay) Send(ctx context.Context, fragment string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	select {
	case r.fragments <- fragment:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err marks clean completion; a non-nil err is
// surfaced through Err once the fragment channel is drained. Close is
// idempotent; only the first call's error sticks.
func (r *Relay) Close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.err = err
	close(r.fragments)
}

// Fragments is the consumer side. The channel closes when the producer
// calls Close; check Err afterwards.
func (r *Relay) Fragments() <-chan string {
	return r.fragments
}

// Err reports the terminal state. Meaningful only after Fragments closes.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
