package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// IceCandidate mirrors the fields of pion/webrtc's ICECandidateInit closely
// enough to round-trip through CBOR without internal/wire importing the
// transport stack just for this one type.
type IceCandidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// TricklePayload bundles an SDP blob with the ICE candidates gathered for
// it — the thing that actually gets signed and base58-encoded into a
// Message's handshake_info field.
type TricklePayload struct {
	SDP        string
	Candidates []IceCandidate
}

// signedTrickle is what actually gets base58-encoded: the payload plus the
// signature and signer over it, so a recipient can authenticate the offer
// or answer independently of the enclosing envelope's own signature.
type signedTrickle struct {
	Payload       TricklePayload
	Signature     [identity.SignatureSize]byte
	SignerAddress identity.Did
}

const checksumSize = 4

// signer is satisfied by identity.KeyPair and identity.Session. Mirrors the
// identical unexported interface in internal/relay — both packages need
// the same two-method shape but neither should have to import the other
// just for a signing capability check.
type signer interface {
	Sign(digest []byte) ([identity.SignatureSize]byte, error)
	Did() identity.Did
}

// EncodeHandshakeInfo signs payload with key and returns the
// base58-with-checksum handshake_info string.
func EncodeHandshakeInfo(payload TricklePayload, key signer) (string, error) {
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("wire: encode trickle payload: %w", err)
	}

	digest := checksumDigest(raw)
	sig, err := key.Sign(digest)
	if err != nil {
		return "", fmt.Errorf("wire: sign trickle payload: %w", err)
	}

	st := signedTrickle{Payload: payload, Signature: sig, SignerAddress: key.Did()}
	body, err := cbor.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("wire: encode signed trickle payload: %w", err)
	}

	return base58.Encode(appendChecksum(body)), nil
}

// DecodeHandshakeInfo reverses EncodeHandshakeInfo, verifying both the
// checksum and the embedded signature. The recovered signer address lets
// the caller confirm handshake_info really came from the Did it claims to.
func DecodeHandshakeInfo(encoded string) (TricklePayload, identity.Did, error) {
	raw := base58.Decode(encoded)
	if len(raw) == 0 && encoded != "" {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: decode handshake info: invalid base58")
	}

	body, err := stripChecksum(raw)
	if err != nil {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: decode handshake info: %w", err)
	}

	var st signedTrickle
	if err := cbor.Unmarshal(body, &st); err != nil {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: decode signed trickle payload: %w", err)
	}

	payloadBytes, err := cbor.Marshal(st.Payload)
	if err != nil {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: re-encode trickle payload: %w", err)
	}
	digest := checksumDigest(payloadBytes)
	signer, err := identity.RecoverDid(digest, st.Signature)
	if err != nil {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: recover handshake signer: %w", err)
	}
	if signer != st.SignerAddress {
		return TricklePayload{}, identity.Did{}, fmt.Errorf("wire: handshake signature does not match signer_address")
	}

	return st.Payload, st.SignerAddress, nil
}

func checksumDigest(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

func appendChecksum(body []byte) []byte {
	sum := checksumDigest(body)
	return append(append([]byte{}, body...), sum[:checksumSize]...)
}

func stripChecksum(raw []byte) ([]byte, error) {
	if len(raw) < checksumSize {
		return nil, fmt.Errorf("too short to contain a checksum")
	}
	body := raw[:len(raw)-checksumSize]
	want := raw[len(raw)-checksumSize:]
	got := checksumDigest(body)[:checksumSize]
	for i := range want {
		if want[i] != got[i] {
			return nil, fmt.Errorf("checksum mismatch")
		}
	}
	return body, nil
}
