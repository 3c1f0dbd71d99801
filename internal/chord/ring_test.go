package chord

import (
	"testing"

	"github.com/chordmesh/ringsnode/internal/identity"
)

func did(b byte) identity.Did {
	var d identity.Did
	d[len(d)-1] = b
	return d
}

func TestJoinAbsorbsIntoSuccessorList(t *testing.T) {
	testCases := []struct {
		name       string
		self       byte
		successor  *byte
		newID      byte
		wantLocal  bool
		wantNextID byte
	}{
		{"empty ring absorbs anyone", 10, nil, 20, true, 0},
		{"falls in (id, successor]", 10, bptr(30), 20, true, 0},
		{"equals successor", 10, bptr(20), 20, true, 0},
		{"falls outside arc forwards", 10, bptr(15), 200, false, 15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRing(did(tc.self))
			if tc.successor != nil {
				r.insertSuccessorLocked(did(*tc.successor))
			}

			action := r.Join(did(tc.newID))
			if tc.wantLocal {
				if action != nil {
					t.Fatalf("expected local absorption, got remote action %+v", action)
				}
				return
			}
			if action == nil {
				t.Fatal("expected a remote action, got nil")
			}
			if action.Next != did(tc.wantNextID) {
				t.Errorf("Next = %v, want %v", action.Next, did(tc.wantNextID))
			}
			if action.Target != did(tc.newID) {
				t.Errorf("Target = %v, want %v", action.Target, did(tc.newID))
			}
		})
	}
}

func bptr(b byte) *byte { return &b }

func TestFindSuccessorLocalHit(t *testing.T) {
	r := NewRing(did(10))
	r.insertSuccessorLocked(did(30))

	got, ok, remote := r.FindSuccessor(did(20))
	if !ok || remote != nil {
		t.Fatalf("expected a local hit, got ok=%v remote=%+v", ok, remote)
	}
	if got != did(30) {
		t.Errorf("successor = %v, want %v", got, did(30))
	}
}

func TestFindSuccessorSelf(t *testing.T) {
	r := NewRing(did(10))
	got, ok, remote := r.FindSuccessor(did(10))
	if !ok || remote != nil || got != did(10) {
		t.Fatalf("find_successor(self) should resolve to self locally, got %v ok=%v remote=%+v", got, ok, remote)
	}
}

func TestFindSuccessorForwards(t *testing.T) {
	r := NewRing(did(10))
	r.insertSuccessorLocked(did(15))
	r.SetFinger(7, did(15))

	_, ok, remote := r.FindSuccessor(did(200))
	if ok {
		t.Fatal("expected a remote action for a target outside (id, successor]")
	}
	if remote == nil || remote.Target != did(200) {
		t.Fatalf("expected remote action targeting 200, got %+v", remote)
	}
}

func TestNotifyAcceptsQualifyingCandidate(t *testing.T) {
	r := NewRing(did(50))

	r.Notify(did(10))
	pred, ok := r.Predecessor()
	if !ok || pred != did(10) {
		t.Fatalf("expected predecessor 10, got %v ok=%v", pred, ok)
	}

	// A candidate further from self than the current predecessor (in the
	// arc (predecessor, self)) should replace it.
	r.Notify(did(30))
	pred, ok = r.Predecessor()
	if !ok || pred != did(30) {
		t.Fatalf("expected predecessor to advance to 30, got %v ok=%v", pred, ok)
	}

	// A candidate that does not fall in (predecessor, self) is ignored.
	r.Notify(did(5))
	pred, ok = r.Predecessor()
	if !ok || pred != did(30) {
		t.Fatalf("predecessor should remain 30, got %v ok=%v", pred, ok)
	}
}

func TestUpdateSuccessorTrimsToListSize(t *testing.T) {
	r := NewRing(did(0))
	r.UpdateSuccessor(did(10))
	r.UpdateSuccessor(did(20))
	r.UpdateSuccessor(did(30))
	r.UpdateSuccessor(did(40))

	got := r.Successors()
	if len(got) != DefaultSuccessorListSize {
		t.Fatalf("successor list = %v, want length %d", got, DefaultSuccessorListSize)
	}
	if got[0] != did(10) {
		t.Errorf("head = %v, want %v (closest clockwise)", got[0], did(10))
	}
}

func TestRemoveFromRingPurgesEverySlot(t *testing.T) {
	r := NewRing(did(0))
	r.UpdateSuccessor(did(10))
	r.Notify(did(200))
	r.SetFinger(3, did(10))

	r.RemoveFromRing(did(10))

	for _, s := range r.Successors() {
		if s == did(10) {
			t.Error("successor list still references removed id")
		}
	}
	if f, ok := r.Finger(3); ok {
		t.Errorf("finger[3] still populated: %v", f)
	}
}

func TestFixFingerAdvancesCursorAndReportsPendingIndex(t *testing.T) {
	r := NewRing(did(0))

	target0 := r.FixFinger()
	if r.FixFingerIndex() != 0 {
		t.Fatalf("FixFingerIndex() = %d, want 0", r.FixFingerIndex())
	}
	if target0 == (identity.Did{}) {
		t.Fatal("fix_finger target should not be the zero id")
	}

	r.FixFinger()
	if r.FixFingerIndex() != 1 {
		t.Fatalf("FixFingerIndex() = %d, want 1 after second call", r.FixFingerIndex())
	}
}
