package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayDeliversFragmentsInOrder(t *testing.T) {
	relay := NewRelay(4)
	fragments := []string{"The ", "sky ", "is ", "blue."}

	go func() {
		for _, f := range fragments {
			require.NoError(t, relay.Send(context.Background(), f))
		}
		relay.Close(nil)
	}()

	var got []string
	for f := range relay.Fragments() {
		got = append(got, f)
	}

	assert.Equal(t, fragments, got)
	assert.NoError(t, relay.Err())
}

func TestRelayReconstructionEqualsSource(t *testing.T) {
	const answer = "A full answer produced in many small pieces, order preserved."

	relay := NewRelay(0)
	go func() {
		for _, r := range answer {
			relay.Send(context.Background(), string(r))
		}
		relay.Close(nil)
	}()

	var rebuilt strings.Builder
	for f := range relay.Fragments() {
		rebuilt.WriteString(f)
	}

	assert.Equal(t, answer, rebuilt.String())
}

func TestRelayTerminalErrorDistinguishesFailure(t *testing.T) {
	relay := NewRelay(4)
	boom := errors.New("generation died")

	go func() {
		relay.Send(context.Background(), "partial")
		relay.Close(boom)
	}()

	var got []string
	for f := range relay.Fragments() {
		got = append(got, f)
	}

	assert.Equal(t, []string{"partial"}, got)
	assert.ErrorIs(t, relay.Err(), boom)
}

func TestRelayCloseIsIdempotent(t *testing.T) {
	relay := NewRelay(1)
	first := errors.New("first")

	relay.Close(first)
	relay.Close(errors.New("second"))
	relay.Close(nil)

	for range relay.Fragments() {
	}
	assert.ErrorIs(t, relay.Err(), first)
}

func TestRelaySendAfterCloseIsDropped(t *testing.T) {
	relay := NewRelay(1)
	relay.Close(nil)

	assert.NoError(t, relay.Send(context.Background(), "late"))

	_, open := <-relay.Fragments()
	assert.False(t, open)
}

func TestRelaySendHonorsContext(t *testing.T) {
	relay := NewRelay(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.Send(ctx, "blocked")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTypewriterFlushesEverythingInOrder(t *testing.T) {
	const text = "All characters must appear, in order, exactly once."

	in := make(chan string)
	go func() {
		in <- text[:10]
		in <- text[10:25]
		in <- text[25:]
		close(in)
	}()

	tw := &Typewriter{Interval: 0}
	var rebuilt strings.Builder
	for r := range tw.Run(context.Background(), in) {
		rebuilt.WriteRune(r)
	}

	assert.Equal(t, text, rebuilt.String())
}

func TestTypewriterNeverBlocksProducer(t *testing.T) {
	in := make(chan string)

	// Pace slowly so the producer outruns the display by a wide margin.
	tw := &Typewriter{Interval: 5 * time.Millisecond}
	out := tw.Run(context.Background(), in)

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < 50; i++ {
			in <- "abc"
		}
		close(in)
	}()

	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked behind presentation pacing")
	}

	// Everything buffered still drains after the input closed.
	var count int
	for range out {
		count++
	}
	assert.Equal(t, 150, count)
}

func TestTypewriterPacesOutput(t *testing.T) {
	in := make(chan string, 1)
	in <- "abcde"
	close(in)

	tw := &Typewriter{Interval: 10 * time.Millisecond}

	start := time.Now()
	var count int
	for range tw.Run(context.Background(), in) {
		count++
	}
	elapsed := time.Since(start)

	assert.Equal(t, 5, count)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestTypewriterStopsOnContextCancel(t *testing.T) {
	in := make(chan string, 1)
	in <- strings.Repeat("x", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	tw := &Typewriter{Interval: time.Millisecond}
	out := tw.Run(ctx, in)

	<-out
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-out:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("output channel did not close after cancellation")
		}
	}
}

func TestTypewriterHandlesMultiByteRunes(t *testing.T) {
	const text = "héllo wörld — çafé ☕"

	in := make(chan string, 1)
	in <- text
	close(in)

	tw := &Typewriter{Interval: 0}
	var rebuilt strings.Builder
	for r := range tw.Run(context.Background(), in) {
		rebuilt.WriteRune(r)
	}

	assert.Equal(t, text, rebuilt.String())
}
