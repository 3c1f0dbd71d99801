package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/relay"
)

// wireEnvelope mirrors the MessageRelay<Message> wire format field-for-
// field. relay.Envelope.Data already holds the canonical encoding of a Message
// (produced by EncodeMessage), so this struct only needs to carry it
// through as an opaque byte string.
type wireEnvelope struct {
	Method        uint8          `cbor:"0,keyasint"`
	FromPath      []identity.Did `cbor:"1,keyasint"`
	ToPath        []identity.Did `cbor:"2,keyasint"`
	TTL           uint32         `cbor:"3,keyasint"`
	Data          []byte         `cbor:"4,keyasint"`
	Signature     [identity.SignatureSize]byte `cbor:"5,keyasint"`
	SignerAddress identity.Did   `cbor:"6,keyasint"`
}

// EncodeEnvelope serializes a relay envelope for transmission over a data
// channel.
func EncodeEnvelope(e *relay.Envelope) ([]byte, error) {
	we := wireEnvelope{
		Method:        uint8(e.Method),
		FromPath:      e.FromPath,
		ToPath:        e.ToPath,
		TTL:           e.TTL,
		Data:          e.Data,
		Signature:     e.Signature,
		SignerAddress: e.SignerAddress,
	}
	out, err := cbor.Marshal(we)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return out, nil
}

// DecodeEnvelope parses bytes received off a data channel into a relay
// envelope. It does not validate paths or verify the signature — callers
// run relay.Envelope.Validate/ExpectNextHop/VerifySignature themselves so
// this package stays a pure codec.
func DecodeEnvelope(b []byte) (*relay.Envelope, error) {
	var we wireEnvelope
	if err := cbor.Unmarshal(b, &we); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if we.Method != uint8(relay.SEND) && we.Method != uint8(relay.REPORT) {
		return nil, fmt.Errorf("wire: decode envelope: unknown method %d", we.Method)
	}
	return &relay.Envelope{
		Method:        relay.Method(we.Method),
		FromPath:      we.FromPath,
		ToPath:        we.ToPath,
		TTL:           we.TTL,
		Data:          we.Data,
		Signature:     we.Signature,
		SignerAddress: we.SignerAddress,
	}, nil
}
