// Package transport implements Component B: a pion/webrtc PeerConnection +
// DataChannel pair that carries relay envelope bytes between two nodes,
// with the signaling handshake (offer/answer/ICE) driven by internal/handler
// and internal/bootstrap rather than by this package itself.
package transport

import (
	"github.com/pion/webrtc/v4"
)

// stunServers are used for ICE candidate gathering. No TURN relay is
// configured: the overlay assumes direct P2P connectivity is achievable for
// most peers, falling back to routing through the ring itself (Component E)
// for the rest rather than paying for TURN infrastructure.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

func newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated DataChannel shared by both sides
// of a transport. Negotiated mode (fixed ID 0) lets the offerer and
// answerer each create the channel locally without waiting on
// OnDataChannel, which keeps the offer/answer handshake in
// internal/handler symmetric. Ordered delivery matters here — unlike the
// tunnel this package was adapted from, a single data channel now carries
// every relay envelope for a peer, including Chord control messages whose
// ordering the handler relies on.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("ringsnode", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
