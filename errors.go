package zkgate

import (
	"github.com/go-errors/errors"
)

var (
	// ErrProofInvalid is returned when the verification equation fails. It is always attributable
	// to the prover and never retried.
	ErrProofInvalid = errors.New("proof invalid")
	// ErrMalformedInput is returned when an envelope, bundle or optical payload fails to parse.
	ErrMalformedInput = errors.New("malformed input")
	// ErrCryptoFailure covers key unwrap, decryption and integrity failures.
	ErrCryptoFailure = errors.New("cryptographic failure")
	// ErrLedgerUnavailable is a transient ledger failure; it is retried.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrServiceUnavailable is returned once the retry policy for a transient failure is exhausted.
	ErrServiceUnavailable = errors.New("service unavailable")

	ErrNonceConsumed     = errors.New("nonce already consumed")
	ErrMissingContext    = errors.New("fiat-shamir challenge requires a session context")
	ErrDegenerateSecret  = errors.New("passphrase derives a degenerate secret key")
	ErrInvalidTransition = errors.New("invalid attempt state transition")
	ErrInvalidParameters = errors.New("invalid domain parameters")
)

// IsAuthenticationFailure reports whether err is one of the failures that must be reported
// to the outside world as a single generic rejection.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrProofInvalid) ||
		errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, ErrCryptoFailure)
}
