package relay

import (
	"errors"
	"testing"

	"github.com/chordmesh/ringsnode/internal/identity"
)

func did(b byte) identity.Did {
	var d identity.Did
	d[len(d)-1] = b
	return d
}

func TestValidateRejectsAdjacentDuplicates(t *testing.T) {
	testCases := []struct {
		name    string
		env     Envelope
		wantErr error
	}{
		{"clean from_path", Envelope{FromPath: []identity.Did{did(1), did(2), did(3)}}, nil},
		{"duplicate in from_path", Envelope{FromPath: []identity.Did{did(1), did(1)}}, ErrInvalidRelayPath},
		{"duplicate in to_path", Envelope{ToPath: []identity.Did{did(9), did(9), did(1)}}, ErrInvalidRelayPath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPushPrevSend(t *testing.T) {
	e := &Envelope{Method: SEND, FromPath: []identity.Did{did(1)}}
	if err := e.PushPrev(did(2), did(1)); err != nil {
		t.Fatalf("PushPrev: %v", err)
	}
	want := []identity.Did{did(1), did(1)}
	if !equalPaths(e.FromPath, want) {
		t.Errorf("FromPath = %v, want %v", e.FromPath, want)
	}
}

func TestPushPrevReportConsumesTail(t *testing.T) {
	e := &Envelope{Method: REPORT, ToPath: []identity.Did{did(3), did(2), did(1)}}

	if err := e.PushPrev(did(1), did(9)); err != nil {
		t.Fatalf("PushPrev: %v", err)
	}
	if !equalPaths(e.ToPath, []identity.Did{did(3), did(2)}) {
		t.Errorf("ToPath = %v, want tail popped", e.ToPath)
	}
	if !equalPaths(e.FromPath, []identity.Did{did(9)}) {
		t.Errorf("FromPath = %v, want [9] prepended", e.FromPath)
	}
}

func TestPushPrevReportWrongTailFails(t *testing.T) {
	e := &Envelope{Method: REPORT, ToPath: []identity.Did{did(3), did(2)}}
	if err := e.PushPrev(did(1), did(9)); !errors.Is(err, ErrInvalidRelayDestination) {
		t.Fatalf("PushPrev() = %v, want ErrInvalidRelayDestination", err)
	}
}

func TestFindPrev(t *testing.T) {
	e := &Envelope{ToPath: []identity.Did{did(1), did(2)}}
	next, ok := e.FindPrev()
	if !ok || next != did(2) {
		t.Fatalf("FindPrev() = %v, %v; want 2, true", next, ok)
	}

	empty := &Envelope{}
	if _, ok := empty.FindPrev(); ok {
		t.Error("FindPrev() on empty to_path should report ok=false")
	}
}

func TestIntoReportInvertsPath(t *testing.T) {
	e := &Envelope{
		Method:   SEND,
		FromPath: []identity.Did{did(1), did(2), did(3)},
		TTL:      10,
		Data:     []byte("send-payload"),
	}

	e.IntoReport([]byte("report-payload"), 64)

	if e.Method != REPORT {
		t.Errorf("Method = %v, want REPORT", e.Method)
	}
	if !equalPaths(e.ToPath, []identity.Did{did(1), did(2), did(3)}) {
		t.Errorf("ToPath = %v, want the old from_path", e.ToPath)
	}
	if len(e.FromPath) != 0 {
		t.Errorf("FromPath = %v, want empty after inversion", e.FromPath)
	}
	if string(e.Data) != "report-payload" || e.TTL != 64 {
		t.Errorf("Data/TTL not replaced: %q %d", e.Data, e.TTL)
	}
}

func TestDecrementTTL(t *testing.T) {
	e := &Envelope{TTL: 1}
	if err := e.DecrementTTL(); err != nil {
		t.Fatalf("DecrementTTL() = %v, want nil", err)
	}
	if e.TTL != 0 {
		t.Fatalf("TTL = %d, want 0", e.TTL)
	}
	if err := e.DecrementTTL(); !errors.Is(err, ErrExpiredRelay) {
		t.Fatalf("DecrementTTL() at zero = %v, want ErrExpiredRelay", err)
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	e := &Envelope{
		Method:   SEND,
		FromPath: []identity.Did{did(1)},
		Data:     []byte("hello"),
		TTL:      5,
	}
	if err := e.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !e.VerifySignature() {
		t.Fatal("VerifySignature() = false, want true for an untouched, freshly signed envelope")
	}

	e.TTL--
	if e.VerifySignature() {
		t.Fatal("VerifySignature() should fail once a signed field is mutated locally")
	}
}

func equalPaths(a, b []identity.Did) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
