// Package identity implements Component A of the overlay: 160-bit ring
// identifiers, secp256k1 keys, signing/recovery, and the session keypair
// delegation scheme used to authorize short-lived signing keys.
package identity

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// DidSize is the width of a ring identifier in bytes (160 bits).
const DidSize = 20

// RingBits is the width of the Chord ring's identifier space in bits (160);
// the ring has 2^RingBits points.
const RingBits = DidSize * 8

// Did is a 160-bit identifier on the Chord ring, derived from the last 20
// bytes of Keccak256(uncompressed secp256k1 public key) — the same scheme
// Ethereum uses for addresses.
type Did [DidSize]byte

// ringModulus is 2^160, the size of the ring's identifier space.
var ringModulus = new(big.Int).Lsh(big.NewInt(1), RingBits)

// Zero is the identifier with all bits unset. It is never a valid node id
// (a node would have to find a preimage of the zero hash) but is useful as
// a sentinel for "no successor yet".
var Zero Did

// Big returns the identifier as an unsigned big integer in [0, 2^160).
func (d Did) Big() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// FromBig reduces x modulo 2^160 and returns the corresponding Did.
func FromBig(x *big.Int) Did {
	r := new(big.Int).Mod(x, ringModulus)
	var d Did
	b := r.Bytes()
	copy(d[DidSize-len(b):], b)
	return d
}

// String renders the identifier as a 0x-prefixed hex string, matching the
// convention used for Ethereum-style addresses.
func (d Did) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

// ParseDid parses a 0x-prefixed or bare hex string into a Did.
func ParseDid(s string) (Did, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Did{}, fmt.Errorf("parse did: %w", err)
	}
	if len(b) != DidSize {
		return Did{}, fmt.Errorf("parse did: expected %d bytes, got %d", DidSize, len(b))
	}
	var d Did
	copy(d[:], b)
	return d, nil
}

// IsZero reports whether d is the zero identifier.
func (d Did) IsZero() bool { return d == Zero }

// SuccessorOf returns self + offset (mod 2^160), i.e. the point on the ring
// reached by walking `offset` clockwise steps from self.
func SuccessorOf(self Did, offset *big.Int) Did {
	return FromBig(new(big.Int).Add(self.Big(), offset))
}

// PowerOfTwo returns 2^i as a big.Int, used for finger[i] = self + 2^i.
func PowerOfTwo(i int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(i))
}

// ArcBounds controls which endpoints of is_in_arc are inclusive.
type ArcBounds uint8

const (
	// ExclusiveExclusive is the open arc (a, b).
	ExclusiveExclusive ArcBounds = iota
	// ExclusiveInclusive is the arc (a, b].
	ExclusiveInclusive
	// InclusiveExclusive is the arc [a, b).
	InclusiveExclusive
	// InclusiveInclusive is the closed arc [a, b].
	InclusiveInclusive
)

// IsInArc reports whether x lies on the clockwise arc from a to b on the
// 2^160 ring, with the endpoint inclusivity given by bounds. When a == b the
// arc is considered to span the whole ring (every x other than the excluded
// endpoints matches), matching the Chord convention that a singleton
// successor list still has a well-defined "everything" arc.
func IsInArc(x, a, b Did, bounds ArcBounds) bool {
	if a == b {
		switch bounds {
		case InclusiveInclusive:
			return true
		case ExclusiveExclusive:
			return x != a
		default:
			return true
		}
	}

	ax, bx := a.Big(), x.Big()
	dxa := new(big.Int).Sub(bx, ax)
	dxa.Mod(dxa, ringModulus)

	bb := b.Big()
	dba := new(big.Int).Sub(bb, ax)
	dba.Mod(dba, ringModulus)

	// x is strictly inside the open arc (a, b) iff its clockwise distance
	// from a is strictly less than b's clockwise distance from a, and x != a.
	strictlyInside := dxa.Sign() != 0 && dxa.Cmp(dba) < 0

	switch bounds {
	case ExclusiveExclusive:
		return strictlyInside
	case ExclusiveInclusive:
		return strictlyInside || x == b
	case InclusiveExclusive:
		return strictlyInside || x == a
	case InclusiveInclusive:
		return strictlyInside || x == a || x == b
	default:
		return strictlyInside
	}
}
