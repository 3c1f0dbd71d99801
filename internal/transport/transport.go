package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/chordmesh/ringsnode/internal/util"
)

// Transport wraps a single PeerConnection + DataChannel pair, providing a
// high-level API for signaling exchange and relay-envelope send/receive
// with backpressure. Its lifecycle is governed by a context derived from the
// one passed at construction time: the DataChannel closing, or the
// PeerConnection reaching Failed/Closed, cancels it, and Done reports that
// to the stabilization loop's dead-transport sweep.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	mu                sync.Mutex
	pcState           webrtc.PeerConnectionState
	remoteDescSet     bool
	pendingCandidates []webrtc.ICECandidateInit
}

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. The caller drives signaling via the exposed
// methods (CreateOffer / CreateAnswer / SetRemoteDescription / …) and then
// uses Send / OnMessage for envelope traffic.
func NewTransport(ctx context.Context) (*Transport, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() {
			util.Stats.AddConn()
			close(t.openSignal)
		})
	})

	dc.OnClose(func() {
		util.LogInfo("transport: data channel closed")
		tCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			util.LogWarning("transport: connection %s", state.String())
			tCancel()
		}
	})

	t.sender = newSender(tCtx, dc, t.openSignal)

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel closed once the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} { return t.openSignal }

// Done returns a channel closed once the Transport is shut down (data
// channel closed, peer connection failed, or parent context cancelled).
func (t *Transport) Done() <-chan struct{} { return t.ctx.Done() }

// Close shuts down the DataChannel and PeerConnection. Idempotent: callers
// may invoke it any number of times, from any number of goroutines.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		select {
		case <-t.openSignal:
			util.Stats.RemoveConn()
		default:
		}
	})
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state. The
// stabilization loop's dead-transport sweep watches Done rather than this
// value; a Failed/Closed state reaches it through the context cancellation
// set up in NewTransport.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP and flushes any ICE
// candidates that arrived (e.g. over the relay, out of order relative to
// the SDP itself) before the remote description was available to attach
// them to.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	t.mu.Lock()
	pending := t.pendingCandidates
	t.pendingCandidates = nil
	t.remoteDescSet = true
	t.mu.Unlock()

	for _, c := range pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			util.LogWarning("transport: flush pending ICE candidate: %v", err)
		}
	}
	return nil
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// GatherLocalCandidates blocks until ICE gathering finishes and returns every
// local candidate collected along the way. The handshake_info exchanged
// between two nodes is a single signed blob (SDP plus its full candidate
// list) rather than incrementally trickled messages, so the handshake flow
// waits for gathering to complete once per offer/answer instead of
// streaming candidates as they arrive.
func (t *Transport) GatherLocalCandidates(ctx context.Context) ([]webrtc.ICECandidateInit, error) {
	var mu sync.Mutex
	var collected []webrtc.ICECandidateInit
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		mu.Lock()
		collected = append(collected, c.ToJSON())
		mu.Unlock()
	})

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return collected, nil
}

// AddICECandidate adds a remote ICE candidate. If the remote description
// has not been set yet, the candidate is buffered and applied once
// SetRemoteDescription runs, since pion rejects candidates added before
// that point.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	t.mu.Lock()
	if !t.remoteDescSet {
		t.pendingCandidates = append(t.pendingCandidates, candidate)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues an envelope's wire bytes for transmission.
func (t *Transport) Send(data []byte) {
	t.sender.send(t.ctx, data)
}

// OnMessage registers a callback invoked for every inbound DataChannel
// message, handed the raw wire bytes — decoding into a relay.Envelope is
// internal/handler's job, keeping this package free of wire-format
// knowledge.
func (t *Transport) OnMessage(fn func([]byte)) {
	t.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		fn(msg.Data)
	})
}
