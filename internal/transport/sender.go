package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/chordmesh/ringsnode/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing envelope channel capacity
)

// sender is a goroutine-based writer that serializes all writes to a single
// DataChannel, adding an open-gate and backpressure control so callers never
// block the Chord handler goroutine on network I/O directly.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender wires the backpressure callbacks on dc and starts the
// background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case data := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(data); err != nil {
				util.LogError("transport: send failed: %v", err)
				return
			}
			util.Stats.AddSent(len(data))

		case <-ctx.Done():
			return
		}
	}
}

// send enqueues an envelope's wire bytes for transmission. It blocks if the
// internal buffer is full and returns silently if ctx is already
// cancelled. The caller is not told whether the bytes were queued or sent,
// and nothing retries a send or tears the transport down after a failed one.
func (s *sender) send(ctx context.Context, data []byte) {
	select {
	case s.inbox <- data:
	case <-ctx.Done():
	}
}
