package zkgate

import (
	"crypto/rand"
	"io"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
)

// OwnershipProof proves knowledge of the secret behind a public key that is being replaced.
// It is a Fiat-Shamir Schnorr proof in RotationDomain whose context binds the new public key
// and the invalidation id, so it authorizes exactly one rotation. Its text form is
// base64(A),base64(S).
type OwnershipProof struct {
	A *big.Int
	S *big.Int
}

// RotationContext returns the Fiat-Shamir context of a key rotation.
func RotationContext(newY *big.Int, invalidationID string) [][]byte {
	return [][]byte{newY.Bytes(), []byte(invalidationID)}
}

// ProveOwnership proves that the holder of kp authorizes replacing kp.PublicKey by newY.
// If rnd is nil crypto/rand is used.
func ProveOwnership(params *DomainParameters, kp *KeyPair, newY *big.Int, invalidationID string, rnd io.Reader) (*OwnershipProof, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	if newY == nil || !ValidInvalidationID(invalidationID) {
		return nil, ErrMalformedInput
	}
	commitment, nonce, err := Commit(params, rnd)
	if err != nil {
		return nil, err
	}
	e, err := fiatShamir(params, RotationDomain, commitment.A, kp.PublicKey, RotationContext(newY, invalidationID))
	if err != nil {
		return nil, err
	}
	s, err := Respond(params, nonce, e, kp)
	if err != nil {
		return nil, err
	}
	return &OwnershipProof{A: commitment.A, S: s}, nil
}

// VerifyOwnership checks that proof was made by the holder of the secret behind oldY for the
// rotation to newY under invalidationID.
func VerifyOwnership(params *DomainParameters, oldY, newY *big.Int, invalidationID string, proof *OwnershipProof) bool {
	if proof == nil || proof.A == nil || oldY == nil || newY == nil {
		return false
	}
	if !ValidInvalidationID(invalidationID) || !params.Group().InGroup(newY) {
		return false
	}
	e, err := fiatShamir(params, RotationDomain, proof.A, oldY, RotationContext(newY, invalidationID))
	if err != nil {
		return false
	}
	return Verify(params, oldY, proof.A, e, proof.S)
}

// MarshalText implements encoding.TextMarshaler.
func (p *OwnershipProof) MarshalText() ([]byte, error) {
	if p.A == nil || p.S == nil {
		return nil, errors.WrapPrefix(ErrMalformedInput, "incomplete ownership proof", 0)
	}
	a, err := p.A.MarshalText()
	if err != nil {
		return nil, err
	}
	s, err := p.S.MarshalText()
	if err != nil {
		return nil, err
	}
	return JoinFields(a, s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OwnershipProof) UnmarshalText(text []byte) error {
	fields, err := SplitFields(text, 2)
	if err != nil {
		return err
	}
	a, s := new(big.Int), new(big.Int)
	if err = a.UnmarshalText(fields[0]); err != nil {
		return errors.WrapPrefix(ErrMalformedInput, err.Error(), 0)
	}
	if err = s.UnmarshalText(fields[1]); err != nil {
		return errors.WrapPrefix(ErrMalformedInput, err.Error(), 0)
	}
	p.A, p.S = a, s
	return nil
}
