// Package bootstrap implements first-contact signaling: the one-time
// WebSocket exchange that lets a node with no ring membership yet obtain its
// very first peer connection, after which internal/handler's ConnectNodeSend
// handshake (tunneled through the ring itself) takes over for every
// subsequent connection. A plain WebSocket handshake, but exchanging a
// single signed handshake_info blob per side instead of trickled raw
// SDP/ICE messages.
package bootstrap

// messageType identifies the kind of bootstrap message exchanged over the
// WebSocket connection.
type messageType string

const (
	msgTypeOffer  messageType = "offer"
	msgTypeAnswer messageType = "answer"
)

// message is the JSON structure exchanged over the bootstrap WebSocket.
// HandshakeInfo is always the signed, base58-encoded blob produced by
// wire.EncodeHandshakeInfo — never a raw SDP string — so a bootstrap peer is
// authenticated by the same mechanism as a ring-routed connect-node
// handshake.
type message struct {
	Type          messageType `json:"type"`
	HandshakeInfo string      `json:"handshake_info"`
}
