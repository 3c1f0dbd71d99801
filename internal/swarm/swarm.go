// Package swarm implements Component C: the registry binding peer
// identifiers to live transports, the half-open pending-transport table
// used during the handshake, and the fan-in event pump the message handler
// polls for inbound envelopes.
package swarm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/util"
)

// ErrToClosePrevTransport is returned by GetOrRegister when a transport was
// already registered for a Did and closing the newly-offered duplicate
// failed.
var ErrToClosePrevTransport = errors.New("swarm: failed to close superseded transport")

// Transport is the slice of *transport.Transport's API that the swarm
// registry needs: enough to tear a connection down, watch its liveness, and
// pump its inbound messages. Accepting the interface rather than the
// concrete type keeps this package testable without a live WebRTC
// connection.
type Transport interface {
	messageSource
	Send(data []byte)
	Close() error
	Done() <-chan struct{}
}

// Swarm owns the table of registered transports (keyed by peer Did) and
// the pending table of half-open transports (keyed by a locally-minted
// UUID) created during a handshake that hasn't resolved to a peer identity
// yet. A single mutex guards both tables; it is held only across map
// mutations, never across network I/O.
type Swarm struct {
	mu      sync.Mutex
	table   map[identity.Did]Transport
	pending map[uuid.UUID]Transport

	session *identity.Session

	events *eventPump
}

// New creates an empty swarm registry for a node authenticating as
// session.
func New(session *identity.Session) *Swarm {
	s := &Swarm{
		table:   make(map[identity.Did]Transport),
		pending: make(map[uuid.UUID]Transport),
		session: session,
	}
	s.events = newEventPump(s.logDrop)
	return s
}

// Session returns the node's current signing session.
func (s *Swarm) Session() *identity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetSession replaces the active session, e.g. after delegating a fresh
// short-lived key.
func (s *Swarm) SetSession(session *identity.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// NewTransport creates a fresh pending transport keyed by a new UUID.
// Callers drive its signaling handshake and eventually either promote it
// via GetOrRegister or close it outright if the handshake fails.
func (s *Swarm) NewTransport(t Transport) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.pending[id] = t
	s.mu.Unlock()
	return id
}

// GetTransport looks up a registered transport by peer Did.
func (s *Swarm) GetTransport(did identity.Did) (Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.table[did]
	return t, ok
}

// GetPending looks up a half-open transport by its pending UUID.
func (s *Swarm) GetPending(id uuid.UUID) (Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[id]
	return t, ok
}

// ClosePending removes and closes a pending transport that never
// completed its handshake.
func (s *Swarm) ClosePending(id uuid.UUID) error {
	s.mu.Lock()
	t, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return t.Close()
}

// GetOrRegister atomically promotes a pending transport into the table
// under did. If a transport is already registered for did, the newly
// offered one is closed instead and the existing one is returned — this
// resolves the case where two nodes race to connect to each other
// simultaneously.
func (s *Swarm) GetOrRegister(did identity.Did, pendingID uuid.UUID, t Transport) (Transport, error) {
	s.mu.Lock()
	existing, already := s.table[did]
	if already {
		s.mu.Unlock()
		if err := t.Close(); err != nil {
			return existing, fmt.Errorf("%w: %v", ErrToClosePrevTransport, err)
		}
		return existing, nil
	}

	delete(s.pending, pendingID)
	s.table[did] = t
	s.mu.Unlock()

	s.events.watch(did, t)
	return t, nil
}

// Disconnect closes and removes the transport registered for did, if any.
func (s *Swarm) Disconnect(did identity.Did) error {
	s.mu.Lock()
	t, ok := s.table[did]
	delete(s.table, did)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.events.forget(did)
	return t.Close()
}

// Peers returns every currently registered peer Did.
func (s *Swarm) Peers() []identity.Did {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.Did, 0, len(s.table))
	for did := range s.table {
		out = append(out, did)
	}
	return out
}

// Pendings returns every currently pending transport's UUID.
func (s *Swarm) Pendings() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

// DeadTransports returns the Dids of every registered transport whose
// underlying connection has failed or closed, for the stabilization loop's
// cleanup sweep.
func (s *Swarm) DeadTransports() []identity.Did {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []identity.Did
	for did, t := range s.table {
		select {
		case <-t.Done():
			dead = append(dead, did)
		default:
		}
	}
	return dead
}

// PollMessage blocks until an envelope arrives from any registered
// transport, returning its origin Did alongside it. It is safe to call
// concurrently from a single consumer goroutine (the message handler's main
// loop); it is not meant to be called from multiple goroutines at once.
func (s *Swarm) PollMessage(stop <-chan struct{}) (identity.Did, []byte, bool) {
	return s.events.poll(stop)
}

func (s *Swarm) logDrop(did identity.Did) {
	util.Stats.DropEnvelope("backpressure")
	util.LogWarning("swarm: dropped oldest buffered envelope for %s under backpressure", did)
}
