// Copyright 2016 Maarten Everts. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"io"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
)

var bigONE = big.NewInt(1)

// ModInverse returns ia, the inverse of a modulo n. Unlike in a prime-order group
// this may fail, as n is typically the even number p-1.
// This function was taken from Go's RSA implementation
func ModInverse(a, n *big.Int) (ia *big.Int, ok bool) {
	g := new(big.Int)
	x := new(big.Int)
	y := new(big.Int)
	g.GCD(x, y, a, n)
	if g.Cmp(bigONE) != 0 {
		return
	}

	if x.Cmp(bigONE) < 0 {
		// 0 is not the multiplicative inverse of any element so, if x
		// < 1, then x is negative.
		x.Add(x, n)
	}

	return x, true
}

// RandomBigInt returns a random big integer value in the range
// [0,(2^numBits)-1], inclusive.
func RandomBigInt(rand io.Reader, numBits uint) (*big.Int, error) {
	t := new(big.Int).Lsh(bigONE, numBits)
	return big.RandInt(rand, t)
}

// RandomInRange returns a uniform random value in the range [lo, hi], inclusive.
func RandomInRange(rand io.Reader, lo, hi *big.Int) (*big.Int, error) {
	if hi.Cmp(lo) < 0 {
		return nil, errors.New("randomInRange: empty range")
	}
	width := new(big.Int).Sub(hi, lo)
	width.Add(width, bigONE)
	r, err := big.RandInt(rand, width)
	if err != nil {
		return nil, err
	}
	return r.Add(r, lo), nil
}
