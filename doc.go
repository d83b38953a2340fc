// Copyright 2016 Maarten Everts. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zkgate implements a discrete-log zero-knowledge identification protocol (Schnorr)
// for physical-access gates. A prover derives a keypair from a passphrase, proves knowledge of
// the secret key without revealing it, and the gate, after verifying the proof, has the one-time
// public key revoked at a ledger authority so the proof cannot be replayed.
//
// This package contains the protocol core: domain parameters, key derivation, commitments,
// challenges (interactive and Fiat-Shamir), responses, verification, the ProofBundle wire
// format and the per-attempt state machine. Transport encryption lives in package envelope,
// the optical channel in package optical and the ledger handshake in package invalidation.
//
// The gate uses exactly one challenge mode: Fiat-Shamir, with the challenge bound to the gate
// identifier and the bundle's invalidation id. The optical channel is one-way, so there is no
// verifier round trip to carry an interactive challenge. Interactive challenges remain available
// for attempts that are constructed with ChallengeInteractive.
package zkgate
