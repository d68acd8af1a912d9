package stream

import (
	"context"
	"sync"
	"time"
)

// Typewriter is a presentation-only pacing layer: it absorbs fragments as
// fast as they arrive and reveals them one rune at a time at a fixed
// interval. It governs display speed only; runes are never reordered or
// dropped, and everything buffered is flushed even after the input closes.
type Typewriter struct {
	Interval time.Duration
}

// Run consumes fragments from in and returns a channel of paced runes. The
// internal buffer is unbounded so the producer never blocks on
// presentation. The output channel closes once in has closed and the buffer
// has fully drained, or when ctx is cancelled.
func (t *Typewriter) Run(ctx context.Context, in <-chan string) <-chan rune {
	out := make(chan rune)

	var mu sync.Mutex
	var pending []rune
	inputDone := make(chan struct{})
	wake := make(chan struct{}, 1)

	go func() {
		defer close(inputDone)
		for fragment := range in {
			mu.Lock()
			pending = append(pending, []rune(fragment)...)
			mu.Unlock()

			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()

	go func() {
		defer close(out)

		var ticker *time.Ticker
		if t.Interval > 0 {
			ticker = time.NewTicker(t.Interval)
			defer ticker.Stop()
		}

		for {
			mu.Lock()
			var next rune
			have := len(pending) > 0
			if have {
				next = pending[0]
				pending = pending[1:]
			}
			mu.Unlock()

			if !have {
				select {
				case <-wake:
					continue
				case <-inputDone:
					// Drain whatever raced in after the last wake.
					mu.Lock()
					done := len(pending) == 0
					mu.Unlock()
					if done {
						return
					}
					continue
				case <-ctx.Done():
					return
				}
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}

			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
