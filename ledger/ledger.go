// Package ledger defines the authority that records which one-time public keys are currently
// valid, and provides Store, a local authority on goleveldb that keeps a signed, hash-chained
// audit trail of every state change.
package ledger

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/sirupsen/logrus"
)

// TxRef identifies the ledger transaction that made a state change.
type TxRef string

// Authority is the external system of record for public key validity.
// Implementations must be safe for concurrent use.
type Authority interface {
	// IsKeyValid reports whether y is registered and has not been invalidated or replaced.
	IsKeyValid(ctx context.Context, y *big.Int) (bool, error)
	// InvalidateKey revokes y. It fails with ErrAlreadyInvalid if y is not currently valid.
	InvalidateKey(ctx context.Context, y *big.Int) (TxRef, error)
	// UpdateKey replaces oldY by newY. The ownership proof authorizes the rotation for
	// invalidationID.
	UpdateKey(ctx context.Context, oldY, newY *big.Int, invalidationID string, proof *zkgate.OwnershipProof) (TxRef, error)
	// RegisterKey enrolls y as a valid key.
	RegisterKey(ctx context.Context, y *big.Int) (TxRef, error)
}

var (
	// ErrAlreadyInvalid: the key is not (or no longer) valid.
	ErrAlreadyInvalid = errors.New("ledger: key already invalid")
	// ErrKeyExists: registering or rotating to a key that the ledger already knows.
	ErrKeyExists = errors.New("ledger: key already registered")
	// ErrAuth: the rotation was not authorized by the holder of the old key.
	ErrAuth = errors.New("ledger: rotation not authorized")
	// ErrTx: a transaction was rejected or reverted.
	ErrTx = errors.New("ledger: transaction failed")
	// ErrConflict: a concurrent transaction interfered; the call may be retried.
	ErrConflict = errors.New("ledger: conflicting transaction")
	// ErrUnavailable: the ledger could not be reached; the call may be retried. It matches
	// zkgate.ErrLedgerUnavailable.
	ErrUnavailable = errors.WrapPrefix(zkgate.ErrLedgerUnavailable, "ledger", 0)
)

// PendingError reports a transaction that was submitted but not final when the call returned.
// It matches ErrUnavailable. Authorities that return it implement Confirmer, so that a retry
// waits for Ref rather than submitting the change again.
type PendingError struct {
	Ref TxRef
}

func (e *PendingError) Error() string {
	return "ledger: transaction " + string(e.Ref) + " pending"
}

func (e *PendingError) Unwrap() error {
	return ErrUnavailable
}

// Confirmer is implemented by authorities whose transactions may still be pending after a call.
type Confirmer interface {
	// AwaitTx blocks until ref is final. It fails with ErrTx if ref was rejected, and with a
	// *PendingError if ctx ends first.
	AwaitTx(ctx context.Context, ref TxRef) error
}

// Retryable reports whether err signals a transient failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConflict)
}

var Logger *logrus.Logger

func init() {
	Logger = logrus.StandardLogger()
}
