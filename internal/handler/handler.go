// Package handler implements Component F: the dispatch table that turns
// inbound relay envelopes into Chord ring operations and drives the
// corresponding SEND/REPORT traffic back out over the swarm's registered
// transports. It is the only package that turns ring decisions into swarm
// traffic; internal/stabilize, internal/admin and internal/node also hold
// both a ring and a swarm, but only to drive them.
package handler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/relay"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/util"
	"github.com/chordmesh/ringsnode/internal/wire"
)

// DefaultTTL bounds how many hops a freshly originated relay operation may
// travel before being dropped as expired. Every forwarding hop consumes
// one; an envelope never decrements TTL on the hop that creates it.
const DefaultTTL = 32

// Handler owns the dispatch loop: decode an envelope, verify it, apply it
// to the ring, and emit whatever follow-up envelope the operation requires.
// It is the only package that touches chord, swarm and transport at once —
// connect_node's handshake needs all three, just as the rest of the
// dispatch table needs chord and swarm.
type Handler struct {
	ctx   context.Context
	ring  *chord.Ring
	swarm *swarm.Swarm

	onCustomMessage func(origin identity.Did, body []byte)

	// pendingOffersMu guards pendingOffers, the association between a node
	// this handler offered a connection to and the pending transport UUID
	// awaiting its ConnectNodeReport answer. internal/swarm's pending table
	// is keyed by UUID alone; this is the handler's own bookkeeping on top
	// of it for the one lookup swarm doesn't need to know about.
	pendingOffersMu sync.Mutex
	pendingOffers   map[identity.Did]uuid.UUID
}

// New creates a Handler bound to a node's ring state and transport
// registry. ctx governs every transport this handler creates in response to
// an inbound connect-node handshake; it should be the node's own lifetime
// context, not a per-request one.
func New(ctx context.Context, ring *chord.Ring, sw *swarm.Swarm) *Handler {
	return &Handler{
		ctx:           ctx,
		ring:          ring,
		swarm:         sw,
		pendingOffers: make(map[identity.Did]uuid.UUID),
	}
}

// OnCustomMessage registers the callback invoked when a CustomMessage
// arrives addressed to this node. Only one callback is kept; registering
// again replaces it.
func (h *Handler) OnCustomMessage(fn func(origin identity.Did, body []byte)) {
	h.onCustomMessage = fn
}

// HandleEnvelope decodes and dispatches one inbound wire payload, received
// from the transport registered for prev. Every failure here is a
// drop-and-log condition, never a panic: a malformed or adversarial peer
// should cost this node nothing beyond the one envelope.
func (h *Handler) HandleEnvelope(prev identity.Did, raw []byte) {
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		util.LogWarning("handler: decode envelope from %s: %v", prev, err)
		return
	}

	if err := env.Validate(); err != nil {
		util.Stats.DropEnvelope("invalid_path")
		util.LogWarning("handler: invalid envelope from %s: %v", prev, err)
		return
	}

	if !env.VerifySignature() {
		util.Stats.DropEnvelope("bad_signature")
		util.LogWarning("handler: signature verification failed from %s", prev)
		return
	}

	self := h.ring.Id()
	if err := env.ExpectNextHop(self); err != nil {
		util.Stats.DropEnvelope("invalid_next_hop")
		util.LogWarning("handler: %s is not the expected next hop from %s: %v", self, prev, err)
		return
	}

	if err := env.PushPrev(self, prev); err != nil {
		util.Stats.DropEnvelope("invalid_destination")
		util.LogWarning("handler: push_prev failed from %s: %v", prev, err)
		return
	}

	if err := env.DecrementTTL(); err != nil {
		util.Stats.DropEnvelope("expired_ttl")
		util.LogWarning("handler: envelope from %s expired in transit", prev)
		return
	}

	msg, err := wire.DecodeMessage(env.Data)
	if err != nil {
		util.LogWarning("handler: decode message from %s: %v", prev, err)
		return
	}

	h.dispatch(prev, env, msg)
}

func (h *Handler) dispatch(prev identity.Did, env *relay.Envelope, msg wire.Message) {
	switch m := msg.(type) {
	case wire.JoinDHT:
		h.handleJoinDHT(prev, env, m)
	case wire.ConnectNodeSend:
		h.handleConnectNodeSend(prev, env, m)
	case wire.ConnectNodeReport:
		h.handleConnectNodeReport(prev, env, m)
	case wire.AlreadyConnected:
		h.handleAlreadyConnected(prev, env, m)
	case wire.FindSuccessorSend:
		h.handleFindSuccessorSend(prev, env, m)
	case wire.FindSuccessorReport:
		h.handleFindSuccessorReport(prev, env, m)
	case wire.NotifyPredecessorSend:
		h.handleNotifyPredecessorSend(prev, env, m)
	case wire.NotifyPredecessorReport:
		h.handleNotifyPredecessorReport(prev, env, m)
	case wire.CustomMessage:
		h.handleCustomMessage(prev, env, m)
	default:
		util.LogWarning("handler: unhandled message type %T from %s", msg, prev)
	}
}

// forward re-signs env exactly as it stands — FromPath/ToPath/TTL already
// reflect this node's own PushPrev/DecrementTTL from HandleEnvelope — and
// retransmits it to next. Used whenever this node is not the final consumer
// of an operation still in flight, whether it is still travelling outward
// (SEND) or already on its way back (REPORT).
func (h *Handler) forward(env *relay.Envelope, next identity.Did) {
	h.transmit(env, next)
}

// originate signs and transmits a brand new SEND with a fresh TTL budget,
// for operations that start at this node rather than continue one already
// routed here: the stabilization loop's ticks, an admin-triggered connect,
// or an outgoing CustomMessage.
func (h *Handler) originate(next identity.Did, msg wire.Message) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		util.LogError("handler: encode message for %s: %v", next, err)
		return
	}
	env := &relay.Envelope{Method: relay.SEND, TTL: DefaultTTL, Data: data}
	h.transmit(env, next)
}

// reply completes a SEND this node is the authoritative answer for: it
// flips env into a REPORT carrying msg and routes it back the way the SEND
// arrived. If that path is already exhausted (this node both received and
// originated the SEND, i.e. a same-node round trip of zero network hops),
// the report is applied locally instead of being transmitted.
func (h *Handler) reply(env *relay.Envelope, msg wire.Message) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		util.LogError("handler: encode reply message: %v", err)
		return
	}
	env.IntoReport(data, DefaultTTL)

	next, ok := env.FindPrev()
	if !ok {
		h.dispatch(h.ring.Id(), env, msg)
		return
	}
	h.transmit(env, next)
}

func (h *Handler) transmit(env *relay.Envelope, next identity.Did) {
	session := h.swarm.Session()
	if session == nil {
		util.LogError("handler: no active session, dropping message to %s", next)
		return
	}
	if err := env.Sign(session); err != nil {
		util.LogError("handler: sign envelope for %s: %v", next, err)
		return
	}

	raw, err := wire.EncodeEnvelope(env)
	if err != nil {
		util.LogError("handler: encode envelope for %s: %v", next, err)
		return
	}

	t, ok := h.swarm.GetTransport(next)
	if !ok {
		util.Stats.DropEnvelope("no_transport")
		util.LogWarning("handler: no transport registered for next hop %s, dropping", next)
		return
	}
	t.Send(raw)
}

// InitiateJoin starts this node's own JoinDHT toward an already-known peer,
// e.g. immediately after a bootstrap handshake completes.
func (h *Handler) InitiateJoin(next identity.Did) {
	h.originate(next, wire.JoinDHT{Id: h.ring.Id()})
}

// InitiateFindSuccessor starts a FindSuccessorSend toward next on this
// node's own behalf (forFix distinguishes a stabilize-driven fix_finger
// query from an ordinary lookup).
func (h *Handler) InitiateFindSuccessor(next, target identity.Did, forFix bool) {
	h.originate(next, wire.FindSuccessorSend{Id: target, ForFix: forFix})
}

// InitiateNotifyPredecessor starts a NotifyPredecessorSend toward next, the
// stabilization loop's periodic "tell my successor about me" tick.
func (h *Handler) InitiateNotifyPredecessor(next identity.Did) {
	h.originate(next, wire.NotifyPredecessorSend{Id: h.ring.Id()})
}

// InitiateConnect starts a connect-node handshake toward an intermediary
// next hop on behalf of target: it creates a fresh offerer transport, waits
// for ICE gathering, and sends the resulting handshake_info as a
// ConnectNodeSend addressed to target. The caller gets back the pending
// transport's UUID so it can be looked up (or cancelled) if the handshake
// never completes.
func (h *Handler) InitiateConnect(next, target identity.Did) (pendingID uuid.UUID, err error) {
	return h.beginOffer(next, target)
}

// Connect starts a connect-node handshake toward target, resolving the next
// hop itself via the same logic SendCustomMessage uses. This is the
// manual/operator-driven entry point (the admin ConnectWithAddress call);
// neither the join path nor the stabilization loop starts a connect-node
// handshake on its own.
func (h *Handler) Connect(target identity.Did) (uuid.UUID, error) {
	return h.InitiateConnect(h.resolveNext(target), target)
}

// SendCustomMessage routes an application payload toward target by the same
// closest_preceding_node logic FindSuccessor uses, forwarding through next
// if target isn't yet resolvable from this node's own state. It travels as
// a single SEND with no implicit REPORT — the application layer handles its
// own request/response pairing, if any, using CustomMessage bodies on both
// legs.
func (h *Handler) SendCustomMessage(target identity.Did, body []byte) {
	h.originate(h.resolveNext(target), wire.CustomMessage{SenderID: h.ring.Id(), TargetID: target, Bytes: body})
}

// resolveNext returns the next hop toward target: target's own successor if
// this node's ring state can answer that directly, otherwise the closest
// preceding node known locally.
func (h *Handler) resolveNext(target identity.Did) identity.Did {
	resolved, ok, remote := h.ring.FindSuccessor(target)
	if ok {
		return resolved
	}
	return remote.Next
}

// handleJoinDHT absorbs a new node into the ring locally when it falls in
// this node's own responsibility arc, or forwards the join further around
// the ring toward whoever is responsible for it. A join never produces a
// REPORT — there is nothing for the joining node to wait on beyond the
// connect-node handshake that got it here in the first place.
func (h *Handler) handleJoinDHT(prev identity.Did, env *relay.Envelope, m wire.JoinDHT) {
	action := h.ring.Join(m.Id)
	if action == nil {
		return
	}
	h.forward(env, action.Next)
}

// handleConnectNodeSend either accepts a handshake offer addressed to this
// node (creating an answerer transport and replying with its
// handshake_info, or AlreadyConnected if one already exists) or forwards the
// offer further toward target using the same closest_preceding_node routing
// FindSuccessor uses for ordinary key lookups.
func (h *Handler) handleConnectNodeSend(prev identity.Did, env *relay.Envelope, m wire.ConnectNodeSend) {
	if m.TargetID != h.ring.Id() {
		h.forward(env, h.resolveNext(m.TargetID))
		return
	}

	if _, already := h.swarm.GetTransport(m.SenderID); already {
		h.reply(env, wire.AlreadyConnected{AnswerID: h.ring.Id()})
		return
	}

	answer, err := h.acceptOffer(m.SenderID, m.HandshakeInfo)
	if err != nil {
		util.LogWarning("handler: accept connect-node offer from %s: %v", m.SenderID, err)
		return
	}
	h.reply(env, wire.ConnectNodeReport{AnswerID: h.ring.Id(), HandshakeInfo: answer})
}

// handleConnectNodeReport routes a handshake answer back toward the node
// that originated the offer, or — once it arrives home — feeds the answer
// into the pending offerer transport to complete the handshake.
func (h *Handler) handleConnectNodeReport(prev identity.Did, env *relay.Envelope, m wire.ConnectNodeReport) {
	if next, ok := env.FindPrev(); ok {
		h.forward(env, next)
		return
	}
	if err := h.completeOffer(m.AnswerID, m.HandshakeInfo); err != nil {
		util.LogWarning("handler: complete connect-node handshake with %s: %v", m.AnswerID, err)
	}
}

// handleAlreadyConnected routes the rejection back toward the offer's
// origin, or — once it arrives home — simply notes that a transport to
// AnswerID already exists and drops the now-redundant pending offerer.
func (h *Handler) handleAlreadyConnected(prev identity.Did, env *relay.Envelope, m wire.AlreadyConnected) {
	if next, ok := env.FindPrev(); ok {
		h.forward(env, next)
		return
	}
	if _, ok := h.swarm.GetTransport(m.AnswerID); !ok {
		util.LogWarning("handler: already-connected report for %s but no transport is registered", m.AnswerID)
	}
	h.pendingOffersMu.Lock()
	pendingID, pending := h.pendingOffers[m.AnswerID]
	delete(h.pendingOffers, m.AnswerID)
	h.pendingOffersMu.Unlock()
	if pending {
		if err := h.swarm.ClosePending(pendingID); err != nil {
			util.LogWarning("handler: close redundant pending offer to %s: %v", m.AnswerID, err)
		}
	}
}

// handleFindSuccessorSend answers a lookup directly when this node's own
// ring state resolves it, or forwards the query toward the closest
// preceding node it knows of.
func (h *Handler) handleFindSuccessorSend(prev identity.Did, env *relay.Envelope, m wire.FindSuccessorSend) {
	result, ok, remote := h.ring.FindSuccessor(m.Id)
	if ok {
		h.reply(env, wire.FindSuccessorReport{Id: result, ForFix: m.ForFix})
		return
	}
	h.forward(env, remote.Next)
}

// handleFindSuccessorReport routes a lookup's answer back toward its
// origin, or — once it arrives home — applies it: to the finger table slot
// FixFinger most recently queried for, or to the successor list for an
// ordinary lookup.
func (h *Handler) handleFindSuccessorReport(prev identity.Did, env *relay.Envelope, m wire.FindSuccessorReport) {
	if next, ok := env.FindPrev(); ok {
		h.forward(env, next)
		return
	}
	if m.ForFix {
		h.ring.SetFinger(h.ring.FixFingerIndex(), m.Id)
	} else {
		h.ring.UpdateSuccessor(m.Id)
	}
}

// handleNotifyPredecessorSend accepts or rejects a predecessor candidate
// and reports this node's own identifier straight back — notify is always a
// direct exchange between ring neighbors, never routed through a multi-hop
// chain, so the generic reply() path collapses to a single hop here.
func (h *Handler) handleNotifyPredecessorSend(prev identity.Did, env *relay.Envelope, m wire.NotifyPredecessorSend) {
	h.ring.Notify(m.Id)
	h.reply(env, wire.NotifyPredecessorReport{Id: h.ring.Id()})
}

// handleNotifyPredecessorReport folds the reporting node back into the
// successor list, confirming it alive and reachable.
func (h *Handler) handleNotifyPredecessorReport(prev identity.Did, env *relay.Envelope, m wire.NotifyPredecessorReport) {
	if next, ok := env.FindPrev(); ok {
		h.forward(env, next)
		return
	}
	h.ring.UpdateSuccessor(m.Id)
}

// handleCustomMessage delivers a fully-arrived application payload to the
// registered callback, or forwards it one hop closer to TargetID.
func (h *Handler) handleCustomMessage(prev identity.Did, env *relay.Envelope, m wire.CustomMessage) {
	if m.TargetID != h.ring.Id() {
		h.forward(env, h.resolveNext(m.TargetID))
		return
	}
	if h.onCustomMessage != nil {
		h.onCustomMessage(m.SenderID, m.Bytes)
	}
}
