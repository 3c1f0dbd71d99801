package wire

import (
	"testing"

	"github.com/chordmesh/ringsnode/internal/identity"
)

func TestHandshakeInfoRoundTrip(t *testing.T) {
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	mid := "0"
	var mline uint16 = 0
	payload := TricklePayload{
		SDP: "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\n",
		Candidates: []IceCandidate{
			{Candidate: "candidate:1 1 UDP 2122260223 10.0.0.1 54321 typ host", SDPMid: &mid, SDPMLineIndex: &mline},
		},
	}

	encoded, err := EncodeHandshakeInfo(payload, key)
	if err != nil {
		t.Fatalf("EncodeHandshakeInfo: %v", err)
	}

	decoded, signer, err := DecodeHandshakeInfo(encoded)
	if err != nil {
		t.Fatalf("DecodeHandshakeInfo: %v", err)
	}
	if signer != key.Did() {
		t.Errorf("signer = %v, want %v", signer, key.Did())
	}
	if decoded.SDP != payload.SDP {
		t.Errorf("SDP = %q, want %q", decoded.SDP, payload.SDP)
	}
	if len(decoded.Candidates) != 1 || decoded.Candidates[0].Candidate != payload.Candidates[0].Candidate {
		t.Errorf("candidates mismatch: %+v", decoded.Candidates)
	}
}

func TestDecodeHandshakeInfoRejectsBadChecksum(t *testing.T) {
	key, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	encoded, err := EncodeHandshakeInfo(TricklePayload{SDP: "v=0"}, key)
	if err != nil {
		t.Fatalf("EncodeHandshakeInfo: %v", err)
	}

	replacement := "x"
	if encoded[len(encoded)-1] == 'x' {
		replacement = "y"
	}
	tampered := encoded[:len(encoded)-1] + replacement
	if _, _, err := DecodeHandshakeInfo(tampered); err == nil {
		t.Fatal("expected an error for a tampered handshake_info string")
	}
}
