// Package relay implements Component E: the source-routed envelope that
// carries every Message between nodes, its SEND/REPORT path bookkeeping,
// and the signature glue that binds an envelope to the node that produced
// it.
package relay

import (
	"errors"
	"fmt"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// Method distinguishes a forward-routed request from its return trip.
type Method uint8

const (
	// SEND carries a request outward, appending to FromPath as it travels.
	SEND Method = 0
	// REPORT retraces a SEND's FromPath back to its origin via ToPath.
	REPORT Method = 1
)

func (m Method) String() string {
	if m == REPORT {
		return "REPORT"
	}
	return "SEND"
}

// Validation errors for malformed or out-of-sequence envelopes. These are
// drop-and-count conditions, never panics — see internal/util for the
// counters they feed.
var (
	ErrInvalidRelayPath        = errors.New("relay: invalid path: adjacent entries equal")
	ErrInvalidNextHop          = errors.New("relay: receiver is not the expected next hop")
	ErrInvalidRelayDestination = errors.New("relay: report path inconsistent with consumption")
	ErrExpiredRelay            = errors.New("relay: ttl expired")
)

// Envelope is the wire-level MessageRelay<Message> wrapper, minus the CBOR
// encode/decode step which lives in internal/wire so this package stays
// free of serialization concerns.
type Envelope struct {
	Method        Method
	FromPath      []identity.Did
	ToPath        []identity.Did
	TTL           uint32
	Data          []byte // canonical encoding of the Message payload
	Signature     [identity.SignatureSize]byte
	SignerAddress identity.Did
}

// Validate checks the path-adjacency invariant shared by FromPath and
// ToPath: no two consecutive entries may be equal.
func (e *Envelope) Validate() error {
	if hasAdjacentDuplicate(e.FromPath) || hasAdjacentDuplicate(e.ToPath) {
		return ErrInvalidRelayPath
	}
	return nil
}

func hasAdjacentDuplicate(path []identity.Did) bool {
	for i := 1; i < len(path); i++ {
		if path[i] == path[i-1] {
			return true
		}
	}
	return false
}

// ExpectNextHop checks that self really is the node this envelope is meant
// to be processed by next. For SEND this is a courtesy check performed by
// callers that already routed to self via find_successor; for REPORT the
// expected next hop is the tail of ToPath.
func (e *Envelope) ExpectNextHop(self identity.Did) error {
	if e.Method != REPORT {
		return nil
	}
	if len(e.ToPath) == 0 {
		return nil // empty ToPath means self is the origin consuming locally
	}
	if e.ToPath[len(e.ToPath)-1] != self {
		return ErrInvalidNextHop
	}
	return nil
}

// PushPrev records self's participation in this envelope's route. For
// SEND, sender is appended to FromPath. For REPORT, the tail of
// ToPath is popped — it must equal self, or ErrInvalidRelayDestination is
// returned — and sender is prepended to FromPath, so that if this node
// later emits a new REPORT, FromPath already holds "how I got here".
func (e *Envelope) PushPrev(self, sender identity.Did) error {
	switch e.Method {
	case SEND:
		e.FromPath = append(e.FromPath, sender)
		return nil
	case REPORT:
		if len(e.ToPath) == 0 {
			return fmt.Errorf("%w: report with empty to_path cannot push_prev", ErrInvalidRelayDestination)
		}
		last := e.ToPath[len(e.ToPath)-1]
		if last != self {
			return fmt.Errorf("%w: to_path tail %s != self %s", ErrInvalidRelayDestination, last, self)
		}
		e.ToPath = e.ToPath[:len(e.ToPath)-1]
		e.FromPath = append([]identity.Did{sender}, e.FromPath...)
		return nil
	default:
		return fmt.Errorf("relay: unknown method %d", e.Method)
	}
}

// FindPrev returns the next hop back toward the origin for a REPORT
// envelope: the last element of ToPath, or ok=false when ToPath is empty,
// meaning self is the origin and should consume the envelope locally
// rather than forward it.
func (e *Envelope) FindPrev() (next identity.Did, ok bool) {
	if len(e.ToPath) == 0 {
		return identity.Did{}, false
	}
	return e.ToPath[len(e.ToPath)-1], true
}

// IntoReport performs the SEND → REPORT inversion: the current FromPath
// becomes the new ToPath (so the REPORT retraces exactly the path
// the SEND took, even if intermediate finger tables have since changed),
// FromPath is cleared, Method becomes REPORT, and Data/TTL are replaced
// with the report's own payload and a fresh TTL.
func (e *Envelope) IntoReport(data []byte, ttl uint32) {
	e.ToPath = e.FromPath
	e.FromPath = nil
	e.Method = REPORT
	e.Data = data
	e.TTL = ttl
}

// DecrementTTL consumes one hop of TTL budget. It reports ErrExpiredRelay
// when the envelope arrives with no budget left to forward further — this
// is only meaningful on forwarding, never on the hop that originates the
// envelope.
func (e *Envelope) DecrementTTL() error {
	if e.TTL == 0 {
		return ErrExpiredRelay
	}
	e.TTL--
	return nil
}
