// Copyright 2016 Maarten Everts. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zkgate

import (
	"fmt"

	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/common"
)

// KeyPair holds a prover's secret exponent x and public key Y = G^x mod P.
// The secret never leaves the struct: it is not marshaled, printed or logged.
type KeyPair struct {
	PublicKey *big.Int

	secret *big.Int
}

// DeriveKeyPair deterministically derives a keypair from a passphrase:
// x = SHA-256(passphrase) mod (P-1) and Y = G^x mod P.
// A passphrase that maps to x = 0 is rejected with ErrDegenerateSecret.
func DeriveKeyPair(passphrase []byte, params *DomainParameters) (*KeyPair, error) {
	group := params.Group()

	x := common.IntHashSha256(passphrase)
	x.Mod(x, group.Order)
	if x.Sign() == 0 {
		return nil, ErrDegenerateSecret
	}

	y := group.ExpG(new(big.Int), x)
	return &KeyPair{PublicKey: y, secret: x}, nil
}

// Wipe zeroes the secret. The keypair cannot produce responses afterwards.
func (kp *KeyPair) Wipe() {
	kp.secret.Wipe()
	kp.secret = nil
}

// String only shows the public key, so that formatting a KeyPair never prints the secret.
func (kp *KeyPair) String() string {
	return fmt.Sprintf("KeyPair{PublicKey: %s}", KeyHint(kp.PublicKey))
}

// KeyHint renders a public key for logs: the first 8 bytes in hex.
func KeyHint(i *big.Int) string {
	if i == nil {
		return "<nil>"
	}
	s := i.Text(16)
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}
