package identity

import (
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// Session is a short-lived signing keypair delegated by a node's long-term
// key. Overlay messages are signed by the session key so operators can
// keep the long-term key cold; the session's authority is established by
// AuthorizedSig, the long-term key's signature over the session key's Did.
type Session struct {
	Key          *KeyPair
	AuthorizedBy Did
	AuthorizedSig [SignatureSize]byte
	ExpiresAt    *time.Time
}

// NewSession mints a fresh session key, signs its Did with the long-term
// key, and attaches the optional ttl. A nil ttl means the session never
// expires on its own (it can still be revoked by issuing a new one).
func NewSession(longTerm *KeyPair, ttl *time.Duration) (*Session, error) {
	sessionKey, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	digest := hashDid(sessionKey.Did())
	sig, err := longTerm.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("new session: sign authorization: %w", err)
	}

	s := &Session{
		Key:          sessionKey,
		AuthorizedBy: longTerm.Did(),
		AuthorizedSig: sig,
	}
	if ttl != nil {
		exp := time.Now().Add(*ttl)
		s.ExpiresAt = &exp
	}
	return s, nil
}

// Expired reports whether the session's TTL has elapsed. A session with no
// TTL is never expired.
func (s *Session) Expired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}

// VerifyAuthorization checks that AuthorizedSig really is a signature by
// AuthorizedBy over this session's own Did — i.e. that the long-term key
// actually delegated to this session key.
func (s *Session) VerifyAuthorization() bool {
	digest := hashDid(s.Key.Did())
	signer, err := RecoverDid(digest, s.AuthorizedSig)
	if err != nil {
		return false
	}
	return signer == s.AuthorizedBy
}

// Sign signs a 32-byte digest with the session key.
func (s *Session) Sign(digest []byte) ([SignatureSize]byte, error) {
	return s.Key.Sign(digest)
}

// Did returns the session key's own Did, used as signer_address on the wire
// even though the message's true origin is AuthorizedBy.
func (s *Session) Did() Did {
	return s.Key.Did()
}

func hashDid(d Did) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(d[:])
	return h.Sum(nil)
}
