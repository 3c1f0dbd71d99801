package handler

import (
	"context"
	"testing"

	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/relay"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/wire"
)

func did(b byte) identity.Did {
	var d identity.Did
	d[len(d)-1] = b
	return d
}

// fakeTransport is a minimal swarm.Transport double: enough to capture what
// a handler sends without negotiating a real DataChannel.
type fakeTransport struct {
	sent   [][]byte
	closed bool
	done   chan struct{}
}

func newFakeTransport() *fakeTransport { return &fakeTransport{done: make(chan struct{})} }

func (f *fakeTransport) OnMessage(func([]byte)) {}
func (f *fakeTransport) Send(data []byte)       { f.sent = append(f.sent, data) }
func (f *fakeTransport) Close() error {
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}
func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func newTestSession(t *testing.T) *identity.Session {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	session, err := identity.NewSession(kp, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

// setup builds a Handler for a node identified by self, with a live swarm
// peer registered under peer and a ring that already knows peer as its sole
// successor.
func setup(t *testing.T, self, peer identity.Did) (*Handler, *swarm.Swarm, *fakeTransport) {
	t.Helper()
	sw := swarm.New(newTestSession(t))
	ft := newFakeTransport()
	id := sw.NewTransport(ft)
	if _, err := sw.GetOrRegister(peer, id, ft); err != nil {
		t.Fatalf("GetOrRegister: %v", err)
	}

	ring := chord.NewRing(self)
	ring.Join(peer) // seeds peer as the sole successor

	h := New(context.Background(), ring, sw)
	return h, sw, ft
}

// sendEnvelope builds a minimally valid signed SEND envelope carrying msg,
// as if it arrived from sender with self as the only path entry so far.
func sendEnvelope(t *testing.T, msg wire.Message, ttl uint32) []byte {
	t.Helper()
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	env := &relay.Envelope{Method: relay.SEND, TTL: ttl, Data: data}
	if err := env.Sign(newTestSession(t)); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := wire.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	return raw
}

func TestHandleJoinDHTAbsorbsLocally(t *testing.T) {
	self, peer, joiner := did(1), did(100), did(50)
	h, _, ft := setup(t, self, peer)

	raw := sendEnvelope(t, wire.JoinDHT{Id: joiner}, DefaultTTL)
	h.HandleEnvelope(peer, raw)

	if len(ft.sent) != 0 {
		t.Fatalf("expected no outbound traffic for a locally-absorbed join, got %d", len(ft.sent))
	}
	successors := h.ring.Successors()
	found := false
	for _, s := range successors {
		if s == joiner {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %v to be absorbed into the successor list, got %v", joiner, successors)
	}
}

func TestHandleFindSuccessorSendRepliesLocally(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, ft := setup(t, self, peer)

	raw := sendEnvelope(t, wire.FindSuccessorSend{Id: self, ForFix: false}, DefaultTTL)
	h.HandleEnvelope(peer, raw)

	if len(ft.sent) != 1 {
		t.Fatalf("expected exactly one REPORT sent back to peer, got %d", len(ft.sent))
	}
	env, err := wire.DecodeEnvelope(ft.sent[0])
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Method != relay.REPORT {
		t.Fatalf("expected a REPORT, got %v", env.Method)
	}
	msg, err := wire.DecodeMessage(env.Data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	report, ok := msg.(wire.FindSuccessorReport)
	if !ok {
		t.Fatalf("expected FindSuccessorReport, got %T", msg)
	}
	if report.Id != self {
		t.Fatalf("expected successor %v, got %v", self, report.Id)
	}
}

func TestHandleNotifyPredecessorSendUpdatesAndReplies(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, ft := setup(t, self, peer)

	raw := sendEnvelope(t, wire.NotifyPredecessorSend{Id: peer}, DefaultTTL)
	h.HandleEnvelope(peer, raw)

	pred, ok := h.ring.Predecessor()
	if !ok || pred != peer {
		t.Fatalf("expected predecessor %v, got %v (ok=%v)", peer, pred, ok)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected a NotifyPredecessorReport sent back, got %d messages", len(ft.sent))
	}
}

func TestHandleCustomMessageDeliversLocally(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, _ := setup(t, self, peer)

	var gotOrigin identity.Did
	var gotBody []byte
	h.OnCustomMessage(func(origin identity.Did, body []byte) {
		gotOrigin, gotBody = origin, body
	})

	raw := sendEnvelope(t, wire.CustomMessage{SenderID: peer, TargetID: self, Bytes: []byte("hi")}, DefaultTTL)
	h.HandleEnvelope(peer, raw)

	if gotOrigin != peer || string(gotBody) != "hi" {
		t.Fatalf("expected callback to see (%v, %q), got (%v, %q)", peer, "hi", gotOrigin, gotBody)
	}
}

func TestHandleEnvelopeDropsExpiredTTL(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, ft := setup(t, self, peer)

	raw := sendEnvelope(t, wire.NotifyPredecessorSend{Id: peer}, 0)
	h.HandleEnvelope(peer, raw)

	if len(ft.sent) != 0 {
		t.Fatalf("expected an expired envelope to be dropped, got %d sent", len(ft.sent))
	}
	if _, ok := h.ring.Predecessor(); ok {
		t.Fatal("expected no predecessor to be set from a dropped envelope")
	}
}

func TestHandleEnvelopeDropsBadSignature(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, ft := setup(t, self, peer)

	data, err := wire.EncodeMessage(wire.NotifyPredecessorSend{Id: peer})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	env := &relay.Envelope{Method: relay.SEND, TTL: DefaultTTL, Data: data}
	// deliberately leave Signature/SignerAddress zeroed
	raw, err := wire.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}

	h.HandleEnvelope(peer, raw)

	if len(ft.sent) != 0 {
		t.Fatalf("expected an unsigned envelope to be dropped, got %d sent", len(ft.sent))
	}
}

func TestAlreadyConnectedForwardsAlongToPath(t *testing.T) {
	self, peer := did(1), did(2)
	h, _, ft := setup(t, self, peer)

	data, err := wire.EncodeMessage(wire.AlreadyConnected{AnswerID: peer})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	// to_path = [peer, self]: self is the expected next hop (tail), and
	// after push_prev pops self off, peer is left as the next hop to
	// forward the REPORT to.
	env := &relay.Envelope{Method: relay.REPORT, ToPath: []identity.Did{peer, self}, TTL: DefaultTTL, Data: data}
	if err := env.Sign(newTestSession(t)); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := wire.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}

	h.HandleEnvelope(peer, raw)

	if len(ft.sent) != 1 {
		t.Fatalf("expected the report forwarded one hop further along to_path, got %d sent", len(ft.sent))
	}
}
