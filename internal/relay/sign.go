package relay

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// signer is satisfied by both identity.KeyPair and identity.Session — an
// envelope is signed by whichever key is currently authoritative for this
// node (its long-term key, or a delegated session key).
type signer interface {
	Sign(digest []byte) ([identity.SignatureSize]byte, error)
	Did() identity.Did
}

// Digest computes the signed portion of an envelope: the canonical byte
// encoding of data || from_path || to_path || ttl, reduced to a 32-byte
// Keccak256 hash for the secp256k1 signature.
func Digest(data []byte, fromPath, toPath []identity.Did, ttl uint32) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	for _, d := range fromPath {
		h.Write(d[:])
	}
	for _, d := range toPath {
		h.Write(d[:])
	}
	var ttlBuf [4]byte
	binary.BigEndian.PutUint32(ttlBuf[:], ttl)
	h.Write(ttlBuf[:])
	return h.Sum(nil)
}

// Sign fills in e.Signature and e.SignerAddress using key, over the
// envelope's Data/FromPath/ToPath/TTL exactly as they stand right now.
// Callers must sign after the envelope's paths/ttl reach the shape that
// will actually go out over the wire for this hop, since PushPrev and
// DecrementTTL mutate those fields and would invalidate an earlier
// signature — see VerifySignature.
func (e *Envelope) Sign(key signer) error {
	digest := Digest(e.Data, e.FromPath, e.ToPath, e.TTL)
	sig, err := key.Sign(digest)
	if err != nil {
		return fmt.Errorf("relay: sign envelope: %w", err)
	}
	e.Signature = sig
	e.SignerAddress = key.Did()
	return nil
}

// VerifySignature recovers the signer from e.Signature and checks it
// matches e.SignerAddress. It must be called on an envelope exactly as it
// arrived off the wire — before PushPrev or DecrementTTL
// mutate FromPath/ToPath/TTL for this node's own forwarding decision, since
// those mutations are local bookkeeping the sender's signature never
// covered.
func (e *Envelope) VerifySignature() bool {
	digest := Digest(e.Data, e.FromPath, e.ToPath, e.TTL)
	recovered, err := identity.RecoverDid(digest, e.Signature)
	if err != nil {
		return false
	}
	return recovered == e.SignerAddress
}
