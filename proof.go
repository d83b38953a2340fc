package zkgate

import (
	"crypto/rand"
	"io"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/common"
)

// Commitment is the prover's first message a = G^r mod P.
type Commitment struct {
	A *big.Int
}

// Nonce is the secret r behind a Commitment. It may be used for exactly one response:
// two responses under the same nonce reveal the secret key.
type Nonce struct {
	r *big.Int
}

// Consumed reports whether the nonce has been used.
func (n *Nonce) Consumed() bool {
	return n == nil || n.r == nil
}

// Commit draws a fresh nonce r uniformly from [1, P-2] and returns the commitment G^r mod P.
// If rnd is nil crypto/rand is used.
func Commit(params *DomainParameters, rnd io.Reader) (*Commitment, *Nonce, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	group := params.Group()
	hi := new(big.Int).Sub(group.Order, bigOne)
	r, err := common.RandomInRange(rnd, bigOne, hi)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err, "failed to draw nonce", 0)
	}
	a := group.ExpG(new(big.Int), r)
	return &Commitment{A: a}, &Nonce{r: r}, nil
}

// Respond computes s = (r + e*x) mod (P-1) and consumes the nonce.
func Respond(params *DomainParameters, nonce *Nonce, e *big.Int, kp *KeyPair) (*big.Int, error) {
	if nonce.Consumed() {
		return nil, ErrNonceConsumed
	}
	if kp == nil || kp.secret == nil {
		return nil, errors.WrapPrefix(ErrMalformedInput, "keypair has no secret", 0)
	}
	if e == nil || e.Sign() < 0 {
		return nil, ErrMalformedInput
	}
	order := params.Group().Order

	s := new(big.Int).Mul(e, kp.secret)
	s.Add(s, nonce.r)
	s.Mod(s, order)

	nonce.r.Wipe()
	nonce.r = nil
	return s, nil
}

// Verify checks the Schnorr verification equation G^s == a * Y^e (mod P).
// It rejects values outside their ranges: a must lie in [1, P-1], Y in [2, P-1] and e, s must
// be non-negative. Verify is a pure function of its inputs.
func Verify(params *DomainParameters, y, a, e, s *big.Int) bool {
	if params == nil || y == nil || a == nil || e == nil || s == nil {
		return false
	}
	group := params.Group()
	if !group.InGroup(a) || !group.InGroup(y) || y.Cmp(bigOne) == 0 {
		return false
	}
	if e.Sign() < 0 || s.Sign() < 0 {
		return false
	}

	lhs := group.ExpG(new(big.Int), s)
	rhs := group.Exp(new(big.Int), y, e)
	rhs.Mul(rhs, a)
	rhs.Mod(rhs, group.P)
	return lhs.Cmp(rhs) == 0
}

// Prove runs the non-interactive prover for an entry at gate gateID: it draws a fresh
// invalidation id and nonce, derives the Fiat-Shamir challenge over the entry context and
// returns the resulting bundle. If rnd is nil crypto/rand is used.
func Prove(params *DomainParameters, kp *KeyPair, gateID string, rnd io.Reader) (*ProofBundle, error) {
	if kp == nil || kp.PublicKey == nil {
		return nil, errors.WrapPrefix(ErrMalformedInput, "no key pair", 0)
	}
	if rnd == nil {
		rnd = rand.Reader
	}
	invalidationID, err := NewInvalidationID(rnd)
	if err != nil {
		return nil, err
	}
	commitment, nonce, err := Commit(params, rnd)
	if err != nil {
		return nil, err
	}
	e, err := FiatShamirChallenge(params, commitment.A, kp.PublicKey, EntryContext(gateID, invalidationID)...)
	if err != nil {
		return nil, err
	}
	s, err := Respond(params, nonce, e, kp)
	if err != nil {
		return nil, err
	}

	Logger.Debugf("created entry proof for key %s", KeyHint(kp.PublicKey))
	return &ProofBundle{
		A:              commitment.A,
		S:              s,
		Y:              new(big.Int).Set(kp.PublicKey),
		InvalidationID: invalidationID,
	}, nil
}

// VerifyBundle recomputes the entry challenge of the bundle for gate gateID and verifies it.
func VerifyBundle(params *DomainParameters, bundle *ProofBundle, gateID string) bool {
	if bundle == nil || !ValidInvalidationID(bundle.InvalidationID) {
		return false
	}
	if bundle.A == nil || bundle.Y == nil {
		return false
	}
	e, err := FiatShamirChallenge(params, bundle.A, bundle.Y, EntryContext(gateID, bundle.InvalidationID)...)
	if err != nil {
		return false
	}
	return Verify(params, bundle.Y, bundle.A, e, bundle.S)
}
