package zkgate

import (
	"context"
	"testing"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	calls int
	fail  int
}

func (f *fakeInvalidator) RequestInvalidation(_ context.Context, _ *big.Int, _ string) (*InvalidationResult, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, ErrServiceUnavailable
	}
	return &InvalidationResult{Status: Invalidated, TxRef: "tx"}, nil
}

func TestAttemptInteractive(t *testing.T) {
	params := realParams(t)
	kp, err := DeriveKeyPair([]byte("interactive"), params)
	require.NoError(t, err)

	at := NewAttempt(params, ChallengeInteractive, testGateID)
	require.Equal(t, Idle, at.State())

	commitment, nonce, err := Commit(params, nil)
	require.NoError(t, err)
	require.NoError(t, at.ReceiveCommitment(kp.PublicKey, commitment.A, "00112233445566778899aabbccddeeff"))
	require.Equal(t, CommitmentSent, at.State())

	e, err := at.IssueChallenge(nil)
	require.NoError(t, err)
	require.Equal(t, ChallengeIssued, at.State())

	s, err := Respond(params, nonce, e, kp)
	require.NoError(t, err)
	require.NoError(t, at.ReceiveResponse(s))
	require.NoError(t, at.Verify())
	require.Equal(t, Verified, at.State())
}

func TestAttemptFiatShamir(t *testing.T) {
	params := realParams(t)
	kp, err := DeriveKeyPair([]byte("fiat-shamir"), params)
	require.NoError(t, err)
	bundle, err := Prove(params, kp, testGateID, nil)
	require.NoError(t, err)

	at := NewAttempt(params, ChallengeFiatShamir, testGateID)
	require.NoError(t, at.Admit(bundle))
	require.Equal(t, Verified, at.State())
	require.Equal(t, bundle.InvalidationID, at.InvalidationID())

	inv := &fakeInvalidator{fail: 1}
	_, err = at.Invalidate(context.Background(), inv)
	require.True(t, errors.Is(err, ErrServiceUnavailable))
	require.Equal(t, InvalidationFailed, at.State())

	result, err := at.Invalidate(context.Background(), inv)
	require.NoError(t, err)
	require.Equal(t, Invalidated, result.Status)
	require.Equal(t, InvalidationConfirmed, at.State())
	require.Same(t, result, at.Result())

	_, err = at.Invalidate(context.Background(), inv)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.Equal(t, 2, inv.calls)
}

func TestAttemptRejected(t *testing.T) {
	params := realParams(t)
	kp, err := DeriveKeyPair([]byte("rejected"), params)
	require.NoError(t, err)
	bundle, err := Prove(params, kp, "another-gate", nil)
	require.NoError(t, err)

	at := NewAttempt(params, ChallengeFiatShamir, testGateID)
	err = at.Admit(bundle)
	require.True(t, errors.Is(err, ErrProofInvalid))
	require.Equal(t, Rejected, at.State())

	inv := &fakeInvalidator{}
	_, err = at.Invalidate(context.Background(), inv)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.Zero(t, inv.calls)
}

func TestAttemptInvalidTransitions(t *testing.T) {
	params := toyParams()
	at := NewAttempt(params, ChallengeInteractive, testGateID)

	_, err := at.IssueChallenge(nil)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.True(t, errors.Is(at.ReceiveResponse(big.NewInt(1)), ErrInvalidTransition))
	require.True(t, errors.Is(at.Verify(), ErrInvalidTransition))
	require.Equal(t, Idle, at.State())

	require.True(t, errors.Is(at.ReceiveCommitment(big.NewInt(18), big.NewInt(8), "bad"), ErrMalformedInput))
	require.NoError(t, at.ReceiveCommitment(big.NewInt(18), big.NewInt(8), "00112233445566778899aabbccddeeff"))
	require.True(t, errors.Is(at.ReceiveCommitment(big.NewInt(18), big.NewInt(8), "00112233445566778899aabbccddeeff"), ErrInvalidTransition))

	// bundles are only accepted by fiat-shamir attempts
	require.True(t, errors.Is(NewAttempt(params, ChallengeInteractive, testGateID).Admit(&ProofBundle{}), ErrInvalidTransition))
}

func TestStateNames(t *testing.T) {
	require.Equal(t, "InvalidationConfirmed", InvalidationConfirmed.String())
	require.Equal(t, "AttemptState(42)", AttemptState(42).String())
	require.Equal(t, "fiat-shamir", ChallengeFiatShamir.String())
	require.Equal(t, "already_invalidated", AlreadyInvalidated.String())
}
