package bootstrap

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/transport"
	"github.com/chordmesh/ringsnode/internal/util"
	"github.com/chordmesh/ringsnode/internal/wire"
)

// EstablishAsHost waits on addr (":0" for a random port) for exactly one
// bootstrap peer, exchanges handshake_info over the resulting WebSocket
// connection as the offering side, and registers the resulting transport
// into sw under the peer's Did. It returns the bound WebSocket address (so
// the caller can print/share it) and the peer's Did once connected.
func EstablishAsHost(ctx context.Context, addr string, sw *swarm.Swarm) (string, identity.Did, error) {
	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Starting bootstrap signaling server...")

	srv := newServer()
	bound, err := srv.start(addr)
	if err != nil {
		spinner.Fail("Failed to start bootstrap server")
		return "", identity.Did{}, err
	}
	defer srv.close()

	spinner.UpdateText(fmt.Sprintf("Listening on %s — waiting for peer...", bound))

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		spinner.Fail("Failed while waiting for peer connection")
		return bound, identity.Did{}, err
	}
	defer wsConn.Close()

	spinner.UpdateText("Peer connected — negotiating WebRTC...")

	t, err := transport.NewTransport(ctx)
	if err != nil {
		spinner.Fail("Failed to create transport")
		return bound, identity.Did{}, err
	}

	session := sw.Session()
	if session == nil {
		t.Close()
		spinner.Fail("No active session")
		return bound, identity.Did{}, fmt.Errorf("bootstrap: no active session")
	}

	peerDid, err := offerOver(ctx, t, wsConn, session)
	if err != nil {
		t.Close()
		spinner.Fail("Handshake failed")
		return bound, identity.Did{}, err
	}

	if err := registerTransport(sw, peerDid, t); err != nil {
		spinner.Fail("Failed to register transport")
		return bound, identity.Did{}, err
	}

	spinner.Success("Bootstrap peer connected")
	return bound, peerDid, nil
}

// EstablishAsClient dials a bootstrap peer's WebSocket endpoint, exchanges
// handshake_info as the answering side, and registers the resulting
// transport into sw under the peer's Did.
func EstablishAsClient(ctx context.Context, wsURL string, sw *swarm.Swarm) (identity.Did, error) {
	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Connecting to bootstrap peer...")

	wsConn, err := dial(ctx, wsURL)
	if err != nil {
		spinner.Fail("Failed to connect")
		return identity.Did{}, err
	}
	defer wsConn.Close()

	spinner.UpdateText("Connected — negotiating WebRTC...")

	t, err := transport.NewTransport(ctx)
	if err != nil {
		spinner.Fail("Failed to create transport")
		return identity.Did{}, err
	}

	session := sw.Session()
	if session == nil {
		t.Close()
		spinner.Fail("No active session")
		return identity.Did{}, fmt.Errorf("bootstrap: no active session")
	}

	peerDid, err := answerOver(ctx, t, wsConn, session)
	if err != nil {
		t.Close()
		spinner.Fail("Handshake failed")
		return identity.Did{}, err
	}

	if err := registerTransport(sw, peerDid, t); err != nil {
		spinner.Fail("Failed to register transport")
		return identity.Did{}, err
	}

	spinner.Success("Bootstrap peer connected")
	return peerDid, nil
}

// offerOver drives the offering half of the exchange over an already
// connected WebSocket: send an offer's handshake_info, wait for the
// answer's, and apply it.
func offerOver(ctx context.Context, t *transport.Transport, wsConn *websocket.Conn, session *identity.Session) (identity.Did, error) {
	offer, err := t.CreateOffer()
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: create offer: %w", err)
	}
	if err := t.SetLocalDescription(offer); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: set local description: %w", err)
	}
	candidates, err := t.GatherLocalCandidates(ctx)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: gather ICE candidates: %w", err)
	}
	info, err := wire.EncodeHandshakeInfo(toTricklePayload(offer.SDP, candidates), session)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: encode offer handshake info: %w", err)
	}
	if err := wsConn.WriteJSON(message{Type: msgTypeOffer, HandshakeInfo: info}); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: send offer: %w", err)
	}

	var msg message
	if err := wsConn.ReadJSON(&msg); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: read answer: %w", err)
	}
	if msg.Type != msgTypeAnswer {
		return identity.Did{}, fmt.Errorf("bootstrap: expected answer, got %s", msg.Type)
	}

	payload, peerDid, err := wire.DecodeHandshakeInfo(msg.HandshakeInfo)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: decode answer handshake info: %w", err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP}
	if err := applyRemote(t, desc, payload); err != nil {
		return identity.Did{}, err
	}
	return peerDid, nil
}

// answerOver drives the answering half of the exchange: wait for the
// offer's handshake_info, apply it, and send back the answer's.
func answerOver(ctx context.Context, t *transport.Transport, wsConn *websocket.Conn, session *identity.Session) (identity.Did, error) {
	var msg message
	if err := wsConn.ReadJSON(&msg); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: read offer: %w", err)
	}
	if msg.Type != msgTypeOffer {
		return identity.Did{}, fmt.Errorf("bootstrap: expected offer, got %s", msg.Type)
	}

	payload, peerDid, err := wire.DecodeHandshakeInfo(msg.HandshakeInfo)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: decode offer handshake info: %w", err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}
	if err := applyRemote(t, desc, payload); err != nil {
		return identity.Did{}, err
	}

	answer, err := t.CreateAnswer()
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: create answer: %w", err)
	}
	if err := t.SetLocalDescription(answer); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: set local description: %w", err)
	}
	candidates, err := t.GatherLocalCandidates(ctx)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: gather ICE candidates: %w", err)
	}
	info, err := wire.EncodeHandshakeInfo(toTricklePayload(answer.SDP, candidates), session)
	if err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: encode answer handshake info: %w", err)
	}
	if err := wsConn.WriteJSON(message{Type: msgTypeAnswer, HandshakeInfo: info}); err != nil {
		return identity.Did{}, fmt.Errorf("bootstrap: send answer: %w", err)
	}
	return peerDid, nil
}

func registerTransport(sw *swarm.Swarm, peerDid identity.Did, t *transport.Transport) error {
	pendingID := sw.NewTransport(t)
	if _, err := sw.GetOrRegister(peerDid, pendingID, t); err != nil {
		return fmt.Errorf("bootstrap: register transport for %s: %w", peerDid, err)
	}
	return nil
}

func applyRemote(t *transport.Transport, desc webrtc.SessionDescription, payload wire.TricklePayload) error {
	if err := t.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("bootstrap: set remote description: %w", err)
	}
	for _, c := range payload.Candidates {
		if err := t.AddICECandidate(fromIceCandidate(c)); err != nil {
			util.LogWarning("bootstrap: add remote ICE candidate: %v", err)
		}
	}
	return nil
}
