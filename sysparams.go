// Copyright 2016 Maarten Everts. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zkgate

import (
	"context"
	"crypto/rand"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/common"
	"github.com/privacybydesign/zkgate/safeprime"
)

const (
	// DefaultParameterBits is the modulus size used when none is configured.
	DefaultParameterBits = 2048
	// MinimumParameterBits is the smallest modulus accepted by a deployed gate.
	MinimumParameterBits = 1024
)

var (
	defaultGenerator = big.NewInt(2)

	ErrNoRecommendedParameters = errors.New("no recommended parameters of the requested size")
)

// GenerateParameters returns parameters with a random prime modulus of exactly bitLength bits
// and base 2. The order of 2 is not checked; use GenerateSafeParameters or RecommendedParameters
// when that matters.
func GenerateParameters(bitLength int) (*DomainParameters, error) {
	if bitLength < 5 {
		return nil, errors.WrapPrefix(ErrInvalidParameters, "bit length too small", 0)
	}
	p, err := common.RandomPrime(rand.Reader, uint(bitLength))
	if err != nil {
		return nil, err
	}
	dp := NewDomainParameters(p, defaultGenerator)
	if err = dp.Validate(); err != nil {
		return nil, err
	}
	return dp, nil
}

// GenerateSafeParameters returns parameters with a freshly generated safe prime modulus
// p = 2q+1 and base 2. Generation at cryptographic sizes takes minutes; it stops when ctx is done.
func GenerateSafeParameters(ctx context.Context, bitLength int) (*DomainParameters, error) {
	p, err := safeprime.GenerateConcurrent(ctx, bitLength)
	if err != nil {
		return nil, err
	}
	dp := NewDomainParameters(p, defaultGenerator)
	if err = dp.Validate(); err != nil {
		return nil, err
	}
	return dp, nil
}

// RecommendedParameters returns parameters built on a precomputed safe prime of the form
// 2^k - d with k >= bitLength, and base 2.
func RecommendedParameters(bitLength int) (*DomainParameters, error) {
	p := safeprime.Convenient(bitLength)
	if p == nil {
		return nil, ErrNoRecommendedParameters
	}
	dp := NewDomainParameters(p, defaultGenerator)
	if err := dp.Validate(); err != nil {
		return nil, err
	}
	return dp, nil
}
