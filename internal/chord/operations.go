package chord

import "github.com/chordmesh/ringsnode/internal/identity"

// Join handles a JoinDHT{id: newID} message. If newID already falls within
// this node's responsibility — the arc (id, successor] — it is absorbed
// straight into the successor list and Join returns nil: nothing further to
// do. Otherwise the caller must forward a FindSuccessor query for newID to
// the node returned in Next.
func (r *Ring) Join(newID identity.Did) *RemoteAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	if newID == r.id {
		return nil
	}

	if len(r.successors) == 0 {
		r.insertSuccessorLocked(newID)
		return nil
	}

	if identity.IsInArc(newID, r.id, r.successors[0], identity.ExclusiveInclusive) {
		r.insertSuccessorLocked(newID)
		return nil
	}

	return &RemoteAction{
		Next:   r.closestPrecedingNodeLocked(newID),
		Target: newID,
	}
}

// FindSuccessor resolves the successor of target. When ok is true, result
// is the answer and remote is nil. When ok is
// false, the caller must send a FindSuccessorSend{id: target} to remote.Next
// and wait for the eventual report.
func (r *Ring) FindSuccessor(target identity.Did) (result identity.Did, ok bool, remote *RemoteAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if target == r.id {
		return r.id, true, nil
	}

	if len(r.successors) == 0 {
		return r.id, true, nil
	}

	if identity.IsInArc(target, r.id, r.successors[0], identity.ExclusiveInclusive) {
		return r.successors[0], true, nil
	}

	return identity.Did{}, false, &RemoteAction{
		Next:   r.closestPrecedingNodeLocked(target),
		Target: target,
	}
}

// closestPrecedingNodeLocked scans the finger table from the widest stride
// down, returning the furthest
// known node that still precedes target, falling back to the successor and
// finally to self.
func (r *Ring) closestPrecedingNodeLocked(target identity.Did) identity.Did {
	for i := identity.RingBits - 1; i >= 0; i-- {
		f := r.finger[i]
		if f == nil {
			continue
		}
		if identity.IsInArc(*f, r.id, target, identity.ExclusiveExclusive) {
			return *f
		}
	}
	if len(r.successors) > 0 {
		return r.successors[0]
	}
	return r.id
}

// Notify handles a NotifyPredecessorSend{id: candidate} message: candidate
// becomes this node's predecessor if it falls in the arc between the
// current predecessor (or anywhere, if none is known yet) and self.
func (r *Ring) Notify(candidate identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if candidate == r.id {
		return
	}

	if r.predecessor == nil || identity.IsInArc(candidate, *r.predecessor, r.id, identity.ExclusiveExclusive) {
		c := candidate
		r.predecessor = &c
	}
}

// UpdateSuccessor folds a NotifyPredecessorReport{id} back into the
// successor list: the reporting node is known to be alive and reachable,
// so it is (re)inserted as a successor-list candidate exactly as a freshly
// discovered node would be.
func (r *Ring) UpdateSuccessor(reportedID identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertSuccessorLocked(reportedID)
}

// RemoveFromRing purges id from every slot that references it — successor
// list, predecessor, and finger table — used when the transport behind id
// is found to be dead.
func (r *Ring) RemoveFromRing(id identity.Did) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.successors[:0]
	for _, s := range r.successors {
		if s != id {
			kept = append(kept, s)
		}
	}
	r.successors = kept

	if r.predecessor != nil && *r.predecessor == id {
		r.predecessor = nil
	}
	for i := range r.finger {
		if r.finger[i] != nil && *r.finger[i] == id {
			r.finger[i] = nil
		}
	}
}

// FixFinger advances the fix-finger cursor and returns the target identifier
// whose successor should now be looked up to (re)populate finger[i]. The
// cursor wraps modulo
// RingBits. Exactly one fix-finger query should be in flight at a time: the
// eventual FindSuccessorReport handler applies its answer to whatever index
// FixFingerIndex() currently reports, not to an index threaded through the
// message.
func (r *Ring) FixFinger() identity.Did {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.fixFingerCursor
	r.fixFingerPending = i
	r.fixFingerCursor = (r.fixFingerCursor + 1) % identity.RingBits

	offset := identity.PowerOfTwo(i)
	return identity.SuccessorOf(r.id, offset)
}
