// Package chord implements Component D of the overlay: the per-node Chord
// ring state (successor list, predecessor, finger table) and the local
// routing decisions. It holds no transport or network code —
// handler.Handler drives the actual message exchange and only touches the
// ring under its own lock, never holding it across network I/O.
package chord

import (
	"math/big"
	"sync"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// DefaultSuccessorListSize is the number of clockwise neighbors tracked in
// the successor list.
const DefaultSuccessorListSize = 3

// ringModulus is 2^160, mirroring identity's own (unexported) modulus.
var ringModulus = new(big.Int).Lsh(big.NewInt(1), identity.RingBits)

// RemoteAction asks the caller to forward a FindSuccessor query for Target
// to Next — the result of a local routing decision that could not be
// resolved from this node's own state.
type RemoteAction struct {
	Next   identity.Did
	Target identity.Did
}

// Ring holds one node's view of the Chord ring. All methods are safe for
// concurrent use; callers must not assume any ordering across two calls
// made without holding the ring themselves — each method is atomic, but
// "read successor then act on it" sequences need e.g. Successor() followed
// by a new call, not a held lock spanning I/O.
type Ring struct {
	mu sync.Mutex

	id          identity.Did
	successors  []identity.Did
	predecessor *identity.Did
	finger      [identity.RingBits]*identity.Did

	// fixFingerCursor is the next index FixFinger will issue a query for.
	// fixFingerPending is the index the most recently issued (still
	// in-flight) query is for — the one SetFinger/FixFingerIndex should act
	// on when its report arrives.
	fixFingerCursor  int
	fixFingerPending int

	successorListSize int
}

// NewRing creates a ring state for a node whose own identifier is id.
func NewRing(id identity.Did) *Ring {
	return &Ring{
		id:                id,
		successorListSize: DefaultSuccessorListSize,
	}
}

// Id returns this node's own identifier.
func (r *Ring) Id() identity.Did { return r.id }

// Successor returns the authoritative successor (successor list head), if
// one is known.
func (r *Ring) Successor() (identity.Did, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.successors) == 0 {
		return identity.Did{}, false
	}
	return r.successors[0], true
}

// Successors returns a copy of the full successor list, head first.
func (r *Ring) Successors() []identity.Did {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.Did, len(r.successors))
	copy(out, r.successors)
	return out
}

// Predecessor returns the current predecessor, if one has been accepted.
func (r *Ring) Predecessor() (identity.Did, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.predecessor == nil {
		return identity.Did{}, false
	}
	return *r.predecessor, true
}

// Finger returns finger table entry i, if populated.
func (r *Ring) Finger(i int) (identity.Did, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= identity.RingBits || r.finger[i] == nil {
		return identity.Did{}, false
	}
	return *r.finger[i], true
}

// SetFinger installs id as finger table entry i. Passing the zero Did value
// is not special-cased — callers that want to clear a stale entry should
// use ClearFinger.
func (r *Ring) SetFinger(i int, id identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= identity.RingBits {
		return
	}
	r.finger[i] = &id
}

// ClearFinger resets finger table entry i to unknown, e.g. after the
// connection behind it fails, leaving the next stabilization tick to refill
// it.
func (r *Ring) ClearFinger(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= 0 && i < identity.RingBits {
		r.finger[i] = nil
	}
}

// FixFingerIndex returns the finger table slot the most recently issued
// FixFinger query is for — the slot a subsequent SetFinger call should
// target when that query's report arrives.
func (r *Ring) FixFingerIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fixFingerPending
}

// insertSuccessorLocked inserts candidate into the successor list if it
// isn't already present, keeping the list sorted in clockwise order
// starting at r.id and trimmed to successorListSize entries. Must be called
// with r.mu held.
func (r *Ring) insertSuccessorLocked(candidate identity.Did) {
	if candidate == r.id {
		return
	}
	for _, s := range r.successors {
		if s == candidate {
			return
		}
	}

	r.successors = append(r.successors, candidate)
	sortClockwise(r.id, r.successors)
	if len(r.successors) > r.successorListSize {
		r.successors = r.successors[:r.successorListSize]
	}
}

// clockwiseDistance returns x's distance from origin walking clockwise,
// i.e. (x - origin) mod 2^160.
func clockwiseDistance(origin, x identity.Did) *big.Int {
	d := new(big.Int).Sub(x.Big(), origin.Big())
	return d.Mod(d, ringModulus)
}

// sortClockwise orders ids by clockwise distance from origin, ascending.
// Successor lists are tiny (configurably 3-ish), so a plain insertion sort
// is plenty.
func sortClockwise(origin identity.Did, ids []identity.Did) {
	for i := 1; i < len(ids); i++ {
		j := i
		for j > 0 && clockwiseDistance(origin, ids[j]).Cmp(clockwiseDistance(origin, ids[j-1])) < 0 {
			ids[j], ids[j-1] = ids[j-1], ids[j]
			j--
		}
	}
}
