package handler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/transport"
	"github.com/chordmesh/ringsnode/internal/util"
	"github.com/chordmesh/ringsnode/internal/wire"
)

// handshakeTransport is the subset of *transport.Transport's API the
// connect-node flow needs beyond the plain swarm.Transport interface. A
// separate interface (rather than asserting the concrete type directly)
// keeps the handshake testable against a fake signaling stack, the same way
// internal/swarm's own tests avoid standing up a real PeerConnection.
type handshakeTransport interface {
	swarm.Transport
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	GatherLocalCandidates(ctx context.Context) ([]webrtc.ICECandidateInit, error)
}

// beginOffer creates a fresh offerer transport addressed at target, gathers
// its local ICE candidates, and sends the resulting handshake_info as a
// ConnectNodeSend toward next — which may be target itself, if a direct
// connection is possible, or an intermediary this node is routing through.
func (h *Handler) beginOffer(next, target identity.Did) (uuid.UUID, error) {
	pendingID, info, err := h.createOffer(target)
	if err != nil {
		return uuid.UUID{}, err
	}

	h.originate(next, wire.ConnectNodeSend{
		SenderID:      h.ring.Id(),
		TargetID:      target,
		HandshakeInfo: info,
	})
	return pendingID, nil
}

// createOffer builds a fresh offerer transport addressed at target and
// registers it in pendingOffers, without sending anything — the caller
// decides how the resulting handshake_info actually reaches target (a
// ConnectNodeSend tunneled through the ring, or an operator pasting it into
// another node's AnswerOffer admin call directly).
func (h *Handler) createOffer(target identity.Did) (uuid.UUID, string, error) {
	t, err := transport.NewTransport(h.ctx)
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("handler: create offerer transport: %w", err)
	}

	offer, err := t.CreateOffer()
	if err != nil {
		t.Close()
		return uuid.UUID{}, "", fmt.Errorf("handler: create offer: %w", err)
	}
	if err := t.SetLocalDescription(offer); err != nil {
		t.Close()
		return uuid.UUID{}, "", fmt.Errorf("handler: set local description: %w", err)
	}

	candidates, err := t.GatherLocalCandidates(h.ctx)
	if err != nil {
		t.Close()
		return uuid.UUID{}, "", fmt.Errorf("handler: gather ICE candidates: %w", err)
	}

	session := h.swarm.Session()
	if session == nil {
		t.Close()
		return uuid.UUID{}, "", fmt.Errorf("handler: no active session")
	}

	info, err := wire.EncodeHandshakeInfo(toTricklePayload(offer.SDP, candidates), session)
	if err != nil {
		t.Close()
		return uuid.UUID{}, "", fmt.Errorf("handler: encode handshake info: %w", err)
	}

	pendingID := h.swarm.NewTransport(t)
	h.pendingOffersMu.Lock()
	h.pendingOffers[target] = pendingID
	h.pendingOffersMu.Unlock()
	return pendingID, info, nil
}

// CreateDirectOffer builds an offerer transport for target without routing
// anything through the ring, returning the handshake_info an operator can
// hand to target out-of-band (e.g. the admin surface's manual three-step
// connect: createOffer / answerOffer / acceptAnswer).
func (h *Handler) CreateDirectOffer(target identity.Did) (uuid.UUID, string, error) {
	return h.createOffer(target)
}

// AcceptOffer answers a handshake_info produced by another node's
// CreateDirectOffer (or received via ConnectNodeSend) and returns this
// node's own handshake_info to send back.
func (h *Handler) AcceptOffer(sender identity.Did, handshakeInfo string) (string, error) {
	return h.acceptOffer(sender, handshakeInfo)
}

// CompleteOffer feeds an answer's handshake_info, produced by AcceptOffer,
// back into the pending offerer transport CreateDirectOffer created for
// answerID, completing the manual three-step connect flow.
func (h *Handler) CompleteOffer(answerID identity.Did, handshakeInfo string) error {
	return h.completeOffer(answerID, handshakeInfo)
}

// acceptOffer decodes a remote offer, creates the answerer transport,
// registers it under sender, and returns the signed handshake_info for the
// ConnectNodeReport reply.
func (h *Handler) acceptOffer(sender identity.Did, handshakeInfo string) (string, error) {
	payload, signerDid, err := wire.DecodeHandshakeInfo(handshakeInfo)
	if err != nil {
		return "", fmt.Errorf("decode offer handshake info: %w", err)
	}
	if signerDid != sender {
		return "", fmt.Errorf("offer handshake info signed by %s, not the claimed sender %s", signerDid, sender)
	}

	t, err := transport.NewTransport(h.ctx)
	if err != nil {
		return "", fmt.Errorf("create answerer transport: %w", err)
	}

	if err := t.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  payload.SDP,
	}); err != nil {
		t.Close()
		return "", fmt.Errorf("set remote description: %w", err)
	}
	for _, c := range payload.Candidates {
		if err := t.AddICECandidate(fromIceCandidate(c)); err != nil {
			util.LogWarning("handler: add remote ICE candidate from %s: %v", sender, err)
		}
	}

	answer, err := t.CreateAnswer()
	if err != nil {
		t.Close()
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := t.SetLocalDescription(answer); err != nil {
		t.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}

	candidates, err := t.GatherLocalCandidates(h.ctx)
	if err != nil {
		t.Close()
		return "", fmt.Errorf("gather ICE candidates: %w", err)
	}

	session := h.swarm.Session()
	if session == nil {
		t.Close()
		return "", fmt.Errorf("no active session")
	}
	info, err := wire.EncodeHandshakeInfo(toTricklePayload(answer.SDP, candidates), session)
	if err != nil {
		t.Close()
		return "", fmt.Errorf("encode handshake info: %w", err)
	}

	pendingID := h.swarm.NewTransport(t)
	if registered, regErr := h.swarm.GetOrRegister(sender, pendingID, t); regErr != nil {
		util.LogWarning("handler: register answerer transport for %s: %v", sender, regErr)
	} else if registered != t {
		// sender raced us and is already registered under a transport this
		// node offered instead; our freshly built answerer was closed by
		// GetOrRegister, so the handshake_info we return here for the
		// REPORT is moot but harmless to still send.
		util.LogInfo("handler: connect-node race with %s resolved in favor of the existing transport", sender)
	}

	return info, nil
}

// completeOffer feeds a ConnectNodeReport's handshake_info into the pending
// offerer transport waiting for it, then promotes that transport into the
// swarm's registered table under answerID.
func (h *Handler) completeOffer(answerID identity.Did, handshakeInfo string) error {
	payload, signerDid, err := wire.DecodeHandshakeInfo(handshakeInfo)
	if err != nil {
		return fmt.Errorf("decode answer handshake info: %w", err)
	}
	if signerDid != answerID {
		return fmt.Errorf("answer handshake info signed by %s, not the claimed answer_id %s", signerDid, answerID)
	}

	pendingID, t, ok := h.findPendingOfferer(answerID)
	if !ok {
		return fmt.Errorf("no pending offerer transport awaiting an answer from %s", answerID)
	}

	if err := t.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  payload.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	for _, c := range payload.Candidates {
		if err := t.AddICECandidate(fromIceCandidate(c)); err != nil {
			util.LogWarning("handler: add remote ICE candidate from %s: %v", answerID, err)
		}
	}

	if _, err := h.swarm.GetOrRegister(answerID, pendingID, t); err != nil {
		return fmt.Errorf("register transport for %s: %w", answerID, err)
	}
	return nil
}

// findPendingOfferer looks up, and forgets, the pending offerer transport
// this node created for answerID, through the handler's own pendingOffers
// map. The swarm only tracks pending transports by a locally-minted
// UUID, not by who the offer was addressed to, so the handler keeps its own
// answerID association here rather than pushing offer-target bookkeeping
// into internal/swarm.
func (h *Handler) findPendingOfferer(answerID identity.Did) (uuid.UUID, handshakeTransport, bool) {
	h.pendingOffersMu.Lock()
	defer h.pendingOffersMu.Unlock()
	id, ok := h.pendingOffers[answerID]
	if !ok {
		return uuid.UUID{}, nil, false
	}
	delete(h.pendingOffers, answerID)

	raw, ok := h.swarm.GetPending(id)
	if !ok {
		return uuid.UUID{}, nil, false
	}
	t, ok := raw.(handshakeTransport)
	return id, t, ok
}

func toTricklePayload(sdp string, candidates []webrtc.ICECandidateInit) wire.TricklePayload {
	out := make([]wire.IceCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, wire.IceCandidate{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
	}
	return wire.TricklePayload{SDP: sdp, Candidates: out}
}

func fromIceCandidate(c wire.IceCandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}
