package stabilize

import (
	"sync"
	"testing"
	"time"

	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/swarm"
)

func did(b byte) identity.Did {
	var d identity.Did
	d[len(d)-1] = b
	return d
}

type fakeConnector struct {
	mu               sync.Mutex
	notifyCalls      []identity.Did
	findSuccessorFor []identity.Did
}

func (f *fakeConnector) InitiateNotifyPredecessor(next identity.Did) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyCalls = append(f.notifyCalls, next)
}

func (f *fakeConnector) InitiateFindSuccessor(next, target identity.Did, forFix bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findSuccessorFor = append(f.findSuccessorFor, target)
}

func (f *fakeConnector) notifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifyCalls)
}

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

func TestTickNotifiesSuccessor(t *testing.T) {
	self, peer := did(1), did(2)
	ring := chord.NewRing(self)
	ring.Join(peer)

	sw := swarm.New(newTestSession(t))
	fc := &fakeConnector{}
	loop := New(ring, sw, fc, time.Hour)

	loop.tick()

	if fc.notifyCount() != 1 {
		t.Fatalf("expected one notify call, got %d", fc.notifyCount())
	}
	if fc.notifyCalls[0] != peer {
		t.Fatalf("expected notify toward successor %v, got %v", peer, fc.notifyCalls[0])
	}
}

func TestTickSkipsNotifyWithoutSuccessor(t *testing.T) {
	self := did(1)
	ring := chord.NewRing(self)
	sw := swarm.New(newTestSession(t))
	fc := &fakeConnector{}
	loop := New(ring, sw, fc, time.Hour)

	loop.tick()

	if fc.notifyCount() != 0 {
		t.Fatalf("expected no notify call with no known successor, got %d", fc.notifyCount())
	}
}

func TestTickResolvesFixFingerLocallyWhenPossible(t *testing.T) {
	self, peer := did(1), did(2)
	ring := chord.NewRing(self)
	ring.Join(peer) // fix_finger's first target, self+2^0, equals this successor

	sw := swarm.New(newTestSession(t))
	fc := &fakeConnector{}
	loop := New(ring, sw, fc, time.Hour)

	loop.tick()

	if len(fc.findSuccessorFor) != 0 {
		t.Fatalf("expected fix_finger to resolve locally, got a FindSuccessorSend for %v", fc.findSuccessorFor)
	}
	if _, ok := ring.Finger(0); !ok {
		t.Fatal("expected finger[0] to be populated from the local resolution")
	}
}

type fakeTransport struct {
	done chan struct{}
}

func (f *fakeTransport) OnMessage(func([]byte)) {}
func (f *fakeTransport) Send([]byte)            {}
func (f *fakeTransport) Close() error           { return nil }
func (f *fakeTransport) Done() <-chan struct{}  { return f.done }

func TestTickSweepsDeadTransports(t *testing.T) {
	self, peer := did(1), did(2)
	ring := chord.NewRing(self)
	ring.Join(peer)

	sw := swarm.New(newTestSession(t))
	ft := &fakeTransport{done: make(chan struct{})}
	close(ft.done) // already dead
	id := sw.NewTransport(ft)
	if _, err := sw.GetOrRegister(peer, id, ft); err != nil {
		t.Fatalf("GetOrRegister: %v", err)
	}

	fc := &fakeConnector{}
	loop := New(ring, sw, fc, time.Hour)
	loop.tick()

	successors := ring.Successors()
	for _, s := range successors {
		if s == peer {
			t.Fatalf("expected dead peer %v to be removed from the ring, successors=%v", peer, successors)
		}
	}
	if _, ok := sw.GetTransport(peer); ok {
		t.Fatal("expected dead peer's transport to be disconnected from the swarm")
	}
}
