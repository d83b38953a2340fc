// Package big contains a mostly API-compatible "math/big".Int that marshals to and from Base64.
// The Base64 text form is the per-field encoding of the optical and envelope wire formats.
package big

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/go-errors/errors"
)

// Int is an API-compatible "math/big".Int that marshals to and from Base64.
// Only supports non-negative integers.
type Int big.Int

var (
	ErrNegative    = errors.New("marshaling negative integers is not supported")
	ErrEmptyText   = errors.New("empty integer encoding")
	ErrInvalidText = errors.New("integer is not valid base64")
)

// MarshalText implements encoding.TextMarshaler, returning the base64-encoding
// of i.Bytes().
func (i *Int) MarshalText() ([]byte, error) {
	if i.Sign() == -1 {
		return nil, ErrNegative
	}
	bts := i.Bytes()
	enc := make([]byte, base64.StdEncoding.EncodedLen(len(bts)))
	base64.StdEncoding.Encode(enc, bts)
	return enc, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is strict: the input must be
// non-empty canonical standard base64.
func (i *Int) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return ErrEmptyText
	}
	bts, err := base64.StdEncoding.Strict().DecodeString(string(text))
	if err != nil {
		return errors.WrapPrefix(ErrInvalidText, err.Error(), 0)
	}
	i.SetBytes(bts)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. If the input is quoted it attempts a
// base64 -> []byte -> Int conversion. Otherwise it attempts to unmarshal the input
// as a JSON base 10 big integer.
func (i *Int) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return ErrEmptyText
	}
	if b[0] != '"' {
		return json.Unmarshal(b, i.Go())
	}
	if len(b) < 2 || b[len(b)-1] != '"' {
		return ErrInvalidText
	}
	return i.UnmarshalText(b[1 : len(b)-1])
}

// RandInt wraps "crypto/rand".Int:
// returns a uniform random value in [0, max). It panics if max <= 0.
func RandInt(rnd io.Reader, max *Int) (*Int, error) {
	i, err := cryptorand.Int(rnd, max.Go())
	return Convert(i), err
}

// Convert from a "math/big".Int
func Convert(x *big.Int) *Int {
	return (*Int)(x)
}

// Go converts to a "math/big".Int
func (i *Int) Go() *big.Int {
	return (*big.Int)(i)
}

// Wipe overwrites the value with zero. Used for nonces and secret keys once consumed.
func (i *Int) Wipe() {
	if i == nil {
		return
	}
	words := i.Go().Bits()
	for j := range words {
		words[j] = 0
	}
	i.SetInt64(0)
}

// "math/big".Int API, restricted to what the protocol needs.

func NewInt(x int64) *Int { return Convert(big.NewInt(x)) }

func (i *Int) Format(s fmt.State, ch rune)  { i.Go().Format(s, ch) }
func (i *Int) Bytes() []byte                { return i.Go().Bytes() }
func (i *Int) FillBytes(buf []byte) []byte  { return i.Go().FillBytes(buf) }
func (i *Int) BitLen() int                  { return i.Go().BitLen() }
func (i *Int) Bit(j int) uint               { return i.Go().Bit(j) }
func (i *Int) Int64() int64                 { return i.Go().Int64() }
func (i *Int) Sign() int                    { return i.Go().Sign() }
func (i *Int) Cmp(y *Int) int               { return i.Go().Cmp(y.Go()) }
func (i *Int) ProbablyPrime(n int) bool     { return i.Go().ProbablyPrime(n) }
func (i *Int) String() string               { return i.Go().String() }
func (i *Int) Text(base int) string         { return i.Go().Text(base) }
func (i *Int) SetInt64(x int64) *Int        { return Convert(i.Go().SetInt64(x)) }
func (i *Int) SetUint64(x uint64) *Int      { return Convert(i.Go().SetUint64(x)) }
func (i *Int) Set(x *Int) *Int              { return Convert(i.Go().Set(x.Go())) }
func (i *Int) Neg(x *Int) *Int              { return Convert(i.Go().Neg(x.Go())) }
func (i *Int) Add(x, y *Int) *Int           { return Convert(i.Go().Add(x.Go(), y.Go())) }
func (i *Int) Sub(x, y *Int) *Int           { return Convert(i.Go().Sub(x.Go(), y.Go())) }
func (i *Int) Mul(x, y *Int) *Int           { return Convert(i.Go().Mul(x.Go(), y.Go())) }
func (i *Int) Mod(x, y *Int) *Int           { return Convert(i.Go().Mod(x.Go(), y.Go())) }
func (i *Int) SetBytes(buf []byte) *Int     { return Convert(i.Go().SetBytes(buf)) }
func (i *Int) Lsh(x *Int, n uint) *Int      { return Convert(i.Go().Lsh(x.Go(), n)) }
func (i *Int) Rsh(x *Int, n uint) *Int      { return Convert(i.Go().Rsh(x.Go(), n)) }
func (i *Int) Exp(x, y, m *Int) *Int        { return Convert(i.Go().Exp(x.Go(), y.Go(), m.Go())) }
func (i *Int) ModInverse(g, n *Int) *Int    { return Convert(i.Go().ModInverse(g.Go(), n.Go())) }
func (i *Int) Xor(x, y *Int) *Int           { return Convert(i.Go().Xor(x.Go(), y.Go())) }
func (i *Int) SetBit(x *Int, j int, b uint) *Int {
	return Convert(i.Go().SetBit(x.Go(), j, b))
}
func (i *Int) GCD(x, y, a, b *Int) *Int {
	return Convert(i.Go().GCD(x.Go(), y.Go(), a.Go(), b.Go()))
}
func (i *Int) SetString(s string, base int) (*Int, bool) {
	z, b := i.Go().SetString(s, base)
	return Convert(z), b
}
