// Package stabilize implements Component G: the periodic loop that keeps a
// node's ring state converging — notifying the current successor, advancing
// the fix-finger cursor, and sweeping dead transports out of both the ring
// and the swarm registry. It holds no ring or swarm state of its own; it
// only drives internal/chord, internal/swarm and internal/handler on a ticker, the same
// single-goroutine periodic-reporter shape used elsewhere in this module.
package stabilize

import (
	"context"
	"time"

	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/util"
)

// DefaultInterval is how often a stabilize tick runs: notify-successor,
// fix-finger, and dead-transport sweep all happen on the same cadence,
// a single timer driving all three rather than three independently
// scheduled tasks.
const DefaultInterval = 3 * time.Second

// connector is the subset of *handler.Handler this loop drives. Accepting
// an interface instead of the concrete type keeps the loop testable
// against a fake dispatcher, the same reasoning internal/swarm and
// internal/handler already apply to their own transport dependencies.
type connector interface {
	InitiateNotifyPredecessor(next identity.Did)
	InitiateFindSuccessor(next, target identity.Did, forFix bool)
}

// Loop periodically drives a Ring's stabilization protocol over a Handler.
type Loop struct {
	ring     *chord.Ring
	swarm    *swarm.Swarm
	handler  connector
	interval time.Duration
}

// New creates a stabilization loop for ring, using sw's dead-transport
// sweep and h to issue the resulting NotifyPredecessorSend/FindSuccessorSend
// traffic. interval <= 0 selects DefaultInterval.
func New(ring *chord.Ring, sw *swarm.Swarm, h connector, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{ring: ring, swarm: sw, handler: h, interval: interval}
}

// Run blocks, ticking until ctx is cancelled. Callers typically launch it in
// its own goroutine.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) tick() {
	l.sweepDeadTransports()
	l.notifySuccessor()
	l.fixFinger()
}

// notifySuccessor sends this node's own id to its current successor, the
// "tell my successor about me" half of the stabilize exchange — the other
// half (learning the successor's predecessor) never happens as a separate
// message; NotifyPredecessorReport folds the responder's own id back into
// the successor list instead (chord.Ring.UpdateSuccessor).
func (l *Loop) notifySuccessor() {
	succ, ok := l.ring.Successor()
	if !ok {
		return
	}
	l.handler.InitiateNotifyPredecessor(succ)
}

// fixFinger advances the ring's fix-finger cursor and either resolves the
// query from local state immediately (no network round trip needed) or
// issues a FindSuccessorSend toward the closest preceding node known for
// it, exactly like an ordinary FindSuccessor lookup, distinguished only by
// ForFix so the eventual report lands on the finger table instead of the
// successor list.
func (l *Loop) fixFinger() {
	target := l.ring.FixFinger()
	result, ok, remote := l.ring.FindSuccessor(target)
	if ok {
		l.ring.SetFinger(l.ring.FixFingerIndex(), result)
		return
	}
	l.handler.InitiateFindSuccessor(remote.Next, remote.Target, true)
}

// sweepDeadTransports removes every ring reference to a peer whose
// transport has failed or closed, and drops it from the swarm registry too
// — otherwise a dead entry would keep winning FindSuccessor/closest-
// preceding-node lookups forever.
func (l *Loop) sweepDeadTransports() {
	for _, did := range l.swarm.DeadTransports() {
		l.ring.RemoveFromRing(did)
		if err := l.swarm.Disconnect(did); err != nil {
			util.LogWarning("stabilize: disconnect dead transport %s: %v", did, err)
		}
	}
}
