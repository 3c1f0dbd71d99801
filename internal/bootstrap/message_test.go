package bootstrap

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := message{Type: msgTypeOffer, HandshakeInfo: "abc123"}

	encoded, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded message
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round trip mismatch: got %#v, want %#v", decoded, msg)
	}
}

func TestICECandidateConversionRoundTrip(t *testing.T) {
	payload := toTricklePayload("v=0", nil)
	if payload.SDP != "v=0" {
		t.Fatalf("expected SDP to survive, got %q", payload.SDP)
	}
	if len(payload.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(payload.Candidates))
	}

	mid := "0"
	mline := uint16(0)
	in := webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122260223 10.0.0.1 54321 typ host", SDPMid: &mid, SDPMLineIndex: &mline}
	withCandidate := toTricklePayload("v=0", []webrtc.ICECandidateInit{in})
	if len(withCandidate.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(withCandidate.Candidates))
	}
	out := fromIceCandidate(withCandidate.Candidates[0])
	if out.Candidate != in.Candidate || out.SDPMid == nil || *out.SDPMid != mid || out.SDPMLineIndex == nil || *out.SDPMLineIndex != mline {
		t.Fatalf("candidate round trip mismatch: got %+v, want %+v", out, in)
	}
}
