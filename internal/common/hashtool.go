package common

import (
	"crypto/sha256"
	"encoding/asn1"

	"github.com/privacybydesign/zkgate/big"

	gobig "math/big"
)

// hashInput is the ASN.1 structure hashed by HashCommit. Every element is length-prefixed by
// the DER encoding, so no two distinct inputs share a hash preimage.
type hashInput struct {
	Domain  string `asn1:"utf8"`
	Count   int
	Values  []*gobig.Int
	Context [][]byte
}

// HashCommit computes the sha256 hash over the asn1 representation of a domain separation tag,
// a slice of big integers and a list of context strings, and returns a positive big integer
// that can be represented with that hash. The values must be non-nil.
func HashCommit(domain string, values []*big.Int, context [][]byte) *big.Int {
	in := hashInput{
		Domain:  domain,
		Count:   len(values),
		Values:  make([]*gobig.Int, len(values)),
		Context: context,
	}
	for i, v := range values {
		in.Values[i] = v.Go()
	}
	if in.Context == nil {
		in.Context = [][]byte{}
	}
	r, err := asn1.Marshal(in)
	if err != nil {
		panic(err) // Marshal should never error, so panic if it does
	}

	sha := sha256.Sum256(r)
	return new(big.Int).SetBytes(sha[:])
}

// IntHashSha256 is a utility function compute the sha256 hash over a byte array
// and return this hash as a big.Int.
func IntHashSha256(input []byte) *big.Int {
	h := sha256.Sum256(input)
	return new(big.Int).SetBytes(h[:])
}
