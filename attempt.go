package zkgate

import (
	"context"
	"fmt"
	"io"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
)

// ChallengeMode selects how the challenge of an attempt is produced.
type ChallengeMode int

const (
	// ChallengeInteractive: the verifier draws e uniformly from [0, 2^256).
	ChallengeInteractive ChallengeMode = iota
	// ChallengeFiatShamir: e is derived from the commitment, the public key and the entry context.
	ChallengeFiatShamir
)

func (m ChallengeMode) String() string {
	switch m {
	case ChallengeInteractive:
		return "interactive"
	case ChallengeFiatShamir:
		return "fiat-shamir"
	default:
		return fmt.Sprintf("ChallengeMode(%d)", int(m))
	}
}

// AttemptState is the state of one authentication attempt at a gate.
type AttemptState int

const (
	Idle AttemptState = iota
	CommitmentSent
	ChallengeIssued
	ResponseSent
	Verified
	Rejected
	InvalidationRequested
	InvalidationConfirmed
	InvalidationFailed
)

var attemptStateNames = [...]string{
	Idle:                  "Idle",
	CommitmentSent:        "CommitmentSent",
	ChallengeIssued:       "ChallengeIssued",
	ResponseSent:          "ResponseSent",
	Verified:              "Verified",
	Rejected:              "Rejected",
	InvalidationRequested: "InvalidationRequested",
	InvalidationConfirmed: "InvalidationConfirmed",
	InvalidationFailed:    "InvalidationFailed",
}

func (s AttemptState) String() string {
	if s < 0 || int(s) >= len(attemptStateNames) {
		return fmt.Sprintf("AttemptState(%d)", int(s))
	}
	return attemptStateNames[s]
}

// InvalidationStatus is the successful outcome of an invalidation or rotation request.
type InvalidationStatus int

const (
	// Invalidated: this request revoked the key.
	Invalidated InvalidationStatus = iota
	// AlreadyInvalidated: the key had been revoked before; no new ledger transaction was made.
	AlreadyInvalidated
	// Updated: the key was replaced by a new one.
	Updated
)

func (s InvalidationStatus) String() string {
	switch s {
	case Invalidated:
		return "invalidated"
	case AlreadyInvalidated:
		return "already_invalidated"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("InvalidationStatus(%d)", int(s))
	}
}

// InvalidationResult is returned by an Invalidator. TxRef is empty for AlreadyInvalidated.
type InvalidationResult struct {
	Status InvalidationStatus
	TxRef  string
}

// Invalidator revokes a public key after a successful proof. It is implemented by the
// invalidation coordinator.
type Invalidator interface {
	RequestInvalidation(ctx context.Context, y *big.Int, invalidationID string) (*InvalidationResult, error)
}

// Attempt tracks one authentication attempt through its states:
//
//	Idle -> CommitmentSent -> ChallengeIssued -> ResponseSent -> Verified | Rejected
//	Verified -> InvalidationRequested -> InvalidationConfirmed | InvalidationFailed
//
// An attempt in InvalidationFailed may request invalidation again. An Attempt is not safe for
// concurrent use.
type Attempt struct {
	params *DomainParameters
	mode   ChallengeMode
	gateID string
	state  AttemptState

	y, a, e, s     *big.Int
	invalidationID string
	result         *InvalidationResult
}

// NewAttempt starts an attempt at gate gateID using the given challenge mode.
func NewAttempt(params *DomainParameters, mode ChallengeMode, gateID string) *Attempt {
	return &Attempt{params: params, mode: mode, gateID: gateID, state: Idle}
}

func (at *Attempt) State() AttemptState         { return at.state }
func (at *Attempt) Mode() ChallengeMode         { return at.mode }
func (at *Attempt) PublicKey() *big.Int         { return at.y }
func (at *Attempt) InvalidationID() string      { return at.invalidationID }
func (at *Attempt) Result() *InvalidationResult { return at.result }

func (at *Attempt) transition(from []AttemptState, to AttemptState) error {
	for _, f := range from {
		if at.state == f {
			Logger.Tracef("attempt %s: %s -> %s", at.invalidationID, at.state, to)
			at.state = to
			return nil
		}
	}
	return errors.WrapPrefix(ErrInvalidTransition, fmt.Sprintf("%s -> %s", at.state, to), 0)
}

// ReceiveCommitment records the prover's public key, commitment and invalidation id.
func (at *Attempt) ReceiveCommitment(y, a *big.Int, invalidationID string) error {
	if at.state != Idle {
		return at.transition(nil, CommitmentSent)
	}
	if y == nil || a == nil || !ValidInvalidationID(invalidationID) {
		return ErrMalformedInput
	}
	at.y, at.a, at.invalidationID = y, a, invalidationID
	return at.transition([]AttemptState{Idle}, CommitmentSent)
}

// IssueChallenge produces the challenge according to the attempt's mode. rnd is only used in
// interactive mode; if nil crypto/rand is used.
func (at *Attempt) IssueChallenge(rnd io.Reader) (*big.Int, error) {
	if at.state != CommitmentSent {
		return nil, at.transition(nil, ChallengeIssued)
	}
	var (
		e   *big.Int
		err error
	)
	switch at.mode {
	case ChallengeInteractive:
		e, err = RandomChallenge(rnd)
	case ChallengeFiatShamir:
		e, err = FiatShamirChallenge(at.params, at.a, at.y, EntryContext(at.gateID, at.invalidationID)...)
	default:
		err = errors.Errorf("unknown challenge mode %v", at.mode)
	}
	if err != nil {
		return nil, err
	}
	at.e = e
	return e, at.transition([]AttemptState{CommitmentSent}, ChallengeIssued)
}

// ReceiveResponse records the prover's response.
func (at *Attempt) ReceiveResponse(s *big.Int) error {
	if at.state != ChallengeIssued {
		return at.transition(nil, ResponseSent)
	}
	if s == nil {
		return ErrMalformedInput
	}
	at.s = s
	return at.transition([]AttemptState{ChallengeIssued}, ResponseSent)
}

// Verify checks the recorded transcript and moves to Verified or Rejected. It returns
// ErrProofInvalid when the proof is rejected.
func (at *Attempt) Verify() error {
	if at.state != ResponseSent {
		return at.transition(nil, Verified)
	}
	if !Verify(at.params, at.y, at.a, at.e, at.s) {
		_ = at.transition([]AttemptState{ResponseSent}, Rejected)
		return ErrProofInvalid
	}
	return at.transition([]AttemptState{ResponseSent}, Verified)
}

// Admit drives a Fiat-Shamir attempt through commitment, challenge, response and verification
// using a received bundle.
func (at *Attempt) Admit(bundle *ProofBundle) error {
	if at.mode != ChallengeFiatShamir {
		return errors.WrapPrefix(ErrInvalidTransition, "bundles require a fiat-shamir attempt", 0)
	}
	if bundle == nil {
		return ErrMalformedInput
	}
	if err := at.ReceiveCommitment(bundle.Y, bundle.A, bundle.InvalidationID); err != nil {
		return err
	}
	if _, err := at.IssueChallenge(nil); err != nil {
		return err
	}
	if err := at.ReceiveResponse(bundle.S); err != nil {
		return err
	}
	return at.Verify()
}

// Invalidate asks inv to revoke the verified public key. On error the attempt moves to
// InvalidationFailed and Invalidate may be called again.
func (at *Attempt) Invalidate(ctx context.Context, inv Invalidator) (*InvalidationResult, error) {
	if err := at.transition([]AttemptState{Verified, InvalidationFailed}, InvalidationRequested); err != nil {
		return nil, err
	}
	result, err := inv.RequestInvalidation(ctx, at.y, at.invalidationID)
	if err != nil {
		_ = at.transition([]AttemptState{InvalidationRequested}, InvalidationFailed)
		return nil, err
	}
	at.result = result
	return result, at.transition([]AttemptState{InvalidationRequested}, InvalidationConfirmed)
}
