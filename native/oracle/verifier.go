package oracle

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidSignature is returned whenever an attestation fails cryptographic
// verification, including malformed signature encodings.
var ErrInvalidSignature = errors.New("oracle: invalid signature")

// Attestation is the signed (rate, timestamp) pair accompanying every
// purchase. It is consumed once and never persisted; trust comes solely from
// the signature.
type Attestation struct {
	Rate        *big.Int
	TimestampMs uint64
	Signature   []byte
}

// Verifier checks detached ed25519 signatures over oracle price attestations
// against a fixed public key.
type Verifier struct {
	pub ed25519.PublicKey
}

// NewVerifier constructs a verifier for the supplied 32-byte ed25519 key.
func NewVerifier(pub []byte) (*Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("oracle: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return &Verifier{pub: ed25519.PublicKey(append([]byte(nil), pub...))}, nil
}

// CanonicalMessage renders the signed payload exactly as the oracle signs it:
// the decimal rate and millisecond timestamp joined by a comma.
func CanonicalMessage(rate *big.Int, timestampMs uint64) []byte {
	r := big.NewInt(0)
	if rate != nil {
		r = rate
	}
	return []byte(fmt.Sprintf("%s,%d", r.String(), timestampMs))
}

// VerifyPrice checks the attestation signature over the sha256 digest of the
// canonical message. Staleness is the caller's concern, not this component's.
func (v *Verifier) VerifyPrice(rate *big.Int, timestampMs uint64, signature []byte) error {
	if v == nil || len(v.pub) != ed25519.PublicKeySize {
		return errors.New("oracle: verifier not configured")
	}
	if len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(CanonicalMessage(rate, timestampMs))
	if !ed25519.Verify(v.pub, digest[:], signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Verify checks a complete attestation.
func (v *Verifier) Verify(att *Attestation) error {
	if att == nil {
		return ErrInvalidSignature
	}
	return v.VerifyPrice(att.Rate, att.TimestampMs, att.Signature)
}
