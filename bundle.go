package zkgate

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
)

const (
	// WireVersion is the version of the optical payload formats. It is bound into the
	// envelope's associated data.
	WireVersion = 1
	// FieldDelimiter separates the fields of the optical payload formats.
	FieldDelimiter = ','

	// InvalidationIDSize is the number of random bytes in an invalidation id.
	InvalidationIDSize = 16
)

// ProofBundle is the non-interactive entry proof as carried over the optical channel:
// commitment A, response S, public key Y and the one-time invalidation id.
// Its text form is base64(A),base64(S),base64(Y),hex(InvalidationID).
type ProofBundle struct {
	A              *big.Int
	S              *big.Int
	Y              *big.Int
	InvalidationID string
}

// NewInvalidationID returns 16 fresh random bytes, hex encoded. If rnd is nil crypto/rand is used.
func NewInvalidationID(rnd io.Reader) (string, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	buf := make([]byte, InvalidationIDSize)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", errors.WrapPrefix(err, "failed to draw invalidation id", 0)
	}
	return hex.EncodeToString(buf), nil
}

// ValidInvalidationID reports whether id is the lowercase hex encoding of 16 bytes.
func ValidInvalidationID(id string) bool {
	if len(id) != 2*InvalidationIDSize {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (b *ProofBundle) MarshalText() ([]byte, error) {
	if b.A == nil || b.S == nil || b.Y == nil {
		return nil, errors.WrapPrefix(ErrMalformedInput, "incomplete proof bundle", 0)
	}
	if !ValidInvalidationID(b.InvalidationID) {
		return nil, errors.WrapPrefix(ErrMalformedInput, "invalid invalidation id", 0)
	}
	fields := make([][]byte, 0, 4)
	for _, i := range []*big.Int{b.A, b.S, b.Y} {
		f, err := i.MarshalText()
		if err != nil {
			return nil, errors.WrapPrefix(ErrMalformedInput, err.Error(), 0)
		}
		fields = append(fields, f)
	}
	fields = append(fields, []byte(b.InvalidationID))
	return JoinFields(fields...), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Any deviation from the format results in
// an error matching ErrMalformedInput.
func (b *ProofBundle) UnmarshalText(text []byte) error {
	fields, err := SplitFields(text, 4)
	if err != nil {
		return err
	}
	ints := make([]*big.Int, 3)
	for j := range ints {
		ints[j] = new(big.Int)
		if err = ints[j].UnmarshalText(fields[j]); err != nil {
			return errors.WrapPrefix(ErrMalformedInput, err.Error(), 0)
		}
	}
	id := string(fields[3])
	if !ValidInvalidationID(id) {
		return errors.WrapPrefix(ErrMalformedInput, "invalid invalidation id", 0)
	}
	b.A, b.S, b.Y, b.InvalidationID = ints[0], ints[1], ints[2], id
	return nil
}

// ParseProofBundle parses the text form of a ProofBundle.
func ParseProofBundle(text []byte) (*ProofBundle, error) {
	b := new(ProofBundle)
	if err := b.UnmarshalText(text); err != nil {
		return nil, err
	}
	return b, nil
}

// JoinFields joins wire format fields with FieldDelimiter.
func JoinFields(fields ...[]byte) []byte {
	return bytes.Join(fields, []byte{FieldDelimiter})
}

// SplitFields splits a wire format payload into exactly n non-empty fields.
func SplitFields(text []byte, n int) ([][]byte, error) {
	fields := bytes.Split(bytes.TrimSpace(text), []byte{FieldDelimiter})
	if len(fields) != n {
		return nil, errors.WrapPrefix(ErrMalformedInput, "wrong number of fields", 0)
	}
	for _, f := range fields {
		if len(f) == 0 {
			return nil, errors.WrapPrefix(ErrMalformedInput, "empty field", 0)
		}
	}
	return fields, nil
}
