package identity

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureSize is the length of a compact secp256k1 signature in the wire
// format's r‖s‖v layout.
const SignatureSize = 65

// KeyPair wraps a secp256k1 private/public keypair and exposes the signing
// and Did-derivation operations Component A is responsible for.
type KeyPair struct {
	Private *btcec.PrivateKey
	Public  *btcec.PublicKey
}

// GenerateKeyPair creates a new random secp256k1 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// KeyPairFromBytes reconstructs a keypair from a 32-byte secp256k1 scalar,
// e.g. one loaded from the RINGS_NODE_KEY environment variable.
func KeyPairFromBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("keypair from bytes: expected 32 bytes, got %d", len(b))
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	return &KeyPair{Private: priv, Public: pub}, nil
}

// DidFromPublicKey derives the 160-bit ring identifier for a public key: the
// last 20 bytes of Keccak256 over the uncompressed, prefix-stripped point
// (X‖Y), mirroring Ethereum's address derivation.
func DidFromPublicKey(pub *btcec.PublicKey) Did {
	uncompressed := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)

	var d Did
	copy(d[:], sum[len(sum)-DidSize:])
	return d
}

// Did returns the ring identifier of this keypair's public key.
func (k *KeyPair) Did() Did {
	return DidFromPublicKey(k.Public)
}

// Sign produces a 65-byte compact signature (r‖s‖v) over hash, which must
// already be a 32-byte digest — the caller hashes the signed payload before
// reaching here.
//
// btcec's SignCompact returns bitcoin-style compact signatures, header byte
// first: [recoveryID+27 (+4 if compressed)] ‖ R ‖ S. We re-pack that into
// the wire format's R ‖ S ‖ recoveryID so verifiers can treat signatures
// uniformly regardless of which library produced them.
func (k *KeyPair) Sign(hash []byte) ([SignatureSize]byte, error) {
	var out [SignatureSize]byte
	if len(hash) != 32 {
		return out, fmt.Errorf("sign: hash must be 32 bytes, got %d", len(hash))
	}
	compact := ecdsa.SignCompact(k.Private, hash, false)
	if len(compact) != SignatureSize {
		return out, fmt.Errorf("sign: unexpected compact signature length %d", len(compact))
	}
	recID := compact[0] - 27
	copy(out[0:32], compact[1:33])
	copy(out[32:64], compact[33:65])
	out[64] = recID
	return out, nil
}

// RecoverPublicKey recovers the signer's public key from a 32-byte digest
// and a 65-byte r‖s‖v signature.
func RecoverPublicKey(hash []byte, sig [SignatureSize]byte) (*btcec.PublicKey, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("recover: hash must be 32 bytes, got %d", len(hash))
	}
	var compact [SignatureSize]byte
	compact[0] = 27 + sig[64]
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact[:], hash)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}
	return pub, nil
}

// RecoverDid recovers the signer's Did from a signature over hash.
func RecoverDid(hash []byte, sig [SignatureSize]byte) (Did, error) {
	pub, err := RecoverPublicKey(hash, sig)
	if err != nil {
		return Did{}, err
	}
	return DidFromPublicKey(pub), nil
}
