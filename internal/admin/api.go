// Package admin exposes a JSON-RPC control surface over the pieces an
// operator needs to drive by hand: connecting to a peer by bootstrap URL or
// by Did, stepping through a manual three-message handshake, inspecting the
// swarm's connected and pending transports, disconnecting a peer, and
// pushing an application-level custom message. It never touches ring
// routing directly — every method is a thin call into internal/swarm,
// internal/handler, or (for ConnectPeerViaHTTP) internal/bootstrap.
package admin

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chordmesh/ringsnode/internal/bootstrap"
	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/handler"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/swarm"
)

// API is the JSON-RPC receiver registered with a go-jsonrpc server. Every
// exported method on it becomes a remotely callable method, namespaced by
// whatever name the caller passes to Server.Register.
type API struct {
	ring    *chord.Ring
	sw      *swarm.Swarm
	handler *handler.Handler
}

// NewAPI builds the admin receiver over an already-running node's ring,
// swarm, and handler.
func NewAPI(ring *chord.Ring, sw *swarm.Swarm, h *handler.Handler) *API {
	return &API{ring: ring, sw: sw, handler: h}
}

// OfferResult is CreateOffer's response: the pending transport's id (needed
// to later match an AcceptAnswer call to the right offer) and the signed
// handshake_info blob to hand to the peer out-of-band.
type OfferResult struct {
	PendingID     uuid.UUID
	HandshakeInfo string
}

// ConnectPeerViaHTTP dials a bootstrap websocket endpoint exposed by a peer
// with no ring membership yet, completing the first-contact handshake and
// returning the newly connected peer's Did.
func (a *API) ConnectPeerViaHTTP(ctx context.Context, wsURL string) (identity.Did, error) {
	return bootstrap.EstablishAsClient(ctx, wsURL, a.sw)
}

// ConnectWithAddress starts a connect-node handshake toward an already
// known Did, routing through the ring the same way an application-level
// SendCustomMessage would.
func (a *API) ConnectWithAddress(ctx context.Context, target identity.Did) (uuid.UUID, error) {
	return a.handler.Connect(target)
}

// CreateOffer begins a manual handshake toward target without routing
// anything through the ring, for an operator relaying handshake_info blobs
// between two nodes by hand (e.g. two nodes behind NATs with no shared
// bootstrap path yet).
func (a *API) CreateOffer(ctx context.Context, target identity.Did) (OfferResult, error) {
	pendingID, info, err := a.handler.CreateDirectOffer(target)
	if err != nil {
		return OfferResult{}, err
	}
	return OfferResult{PendingID: pendingID, HandshakeInfo: info}, nil
}

// AnswerOffer answers a handshake_info blob produced by a peer's CreateOffer
// call, returning this node's own handshake_info to relay back.
func (a *API) AnswerOffer(ctx context.Context, sender identity.Did, handshakeInfo string) (string, error) {
	return a.handler.AcceptOffer(sender, handshakeInfo)
}

// AcceptAnswer completes a manual handshake begun by CreateOffer, feeding
// back the answer produced by the peer's AnswerOffer call.
func (a *API) AcceptAnswer(ctx context.Context, answerID identity.Did, handshakeInfo string) error {
	return a.handler.CompleteOffer(answerID, handshakeInfo)
}

// ListPeers returns the Dids of every currently connected transport.
func (a *API) ListPeers(ctx context.Context) ([]identity.Did, error) {
	return a.sw.Peers(), nil
}

// ListPendings returns the ids of every transport awaiting a handshake
// completion.
func (a *API) ListPendings(ctx context.Context) ([]uuid.UUID, error) {
	return a.sw.Pendings(), nil
}

// Disconnect closes and forgets the registered transport for target, if
// any.
func (a *API) Disconnect(ctx context.Context, target identity.Did) error {
	return a.sw.Disconnect(target)
}

// ClosePendingTransport closes and forgets a not-yet-completed transport,
// abandoning the handshake it was part of.
func (a *API) ClosePendingTransport(ctx context.Context, id uuid.UUID) error {
	return a.sw.ClosePending(id)
}

// SendMessage pushes an application-level payload toward target.
func (a *API) SendMessage(ctx context.Context, target identity.Did, body []byte) error {
	if a.ring.Id() == target {
		return fmt.Errorf("admin: refusing to send a custom message to self")
	}
	a.handler.SendCustomMessage(target, body)
	return nil
}
