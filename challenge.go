package zkgate

import (
	"crypto/rand"
	"io"

	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/common"
)

const (
	// EntryDomain separates entry proofs from every other use of the challenge hash.
	EntryDomain = "zkgate/v1/entry"
	// RotationDomain separates key rotation proofs.
	RotationDomain = "zkgate/v1/rotate"

	// ChallengeBits is the size of an interactive challenge.
	ChallengeBits = 256
)

// RandomChallenge returns an interactive challenge, uniform in [0, 2^256).
// If rnd is nil crypto/rand is used.
func RandomChallenge(rnd io.Reader) (*big.Int, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	return common.RandomBigInt(rnd, ChallengeBits)
}

// FiatShamirChallenge derives the non-interactive entry challenge
// e = SHA-256(ASN.1{EntryDomain, [a, y], context}) mod (P-1).
// The context binds the proof to its session (for entry: gate id and invalidation id) and must
// contain at least one non-empty element.
func FiatShamirChallenge(params *DomainParameters, a, y *big.Int, context ...[]byte) (*big.Int, error) {
	return fiatShamir(params, EntryDomain, a, y, context)
}

func fiatShamir(params *DomainParameters, domain string, a, y *big.Int, context [][]byte) (*big.Int, error) {
	if !hasContext(context) {
		return nil, ErrMissingContext
	}
	if a == nil || y == nil {
		return nil, ErrMalformedInput
	}
	e := common.HashCommit(domain, []*big.Int{a, y}, context)
	return e.Mod(e, params.Group().Order), nil
}

func hasContext(context [][]byte) bool {
	for _, c := range context {
		if len(c) > 0 {
			return true
		}
	}
	return false
}

// EntryContext returns the Fiat-Shamir context of an entry proof.
func EntryContext(gateID, invalidationID string) [][]byte {
	return [][]byte{[]byte(gateID), []byte(invalidationID)}
}
