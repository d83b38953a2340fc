// Package invalidation coordinates the revocation of one-time public keys at the ledger
// authority after a successful entry proof, and authorizes key rotations.
package invalidation

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/ledger"
	"github.com/sirupsen/logrus"
)

var (
	// ErrReplay is returned when a request for the same invalidation id is already in flight.
	ErrReplay = errors.New("invalidation: invalidation id already in use")
	// ErrAuth is returned when a rotation is not authorized by the holder of the old key.
	ErrAuth = ledger.ErrAuth
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.StandardLogger()
}

// RetryPolicy bounds the ledger calls of a request. Every call runs under CallTimeout; calls
// failing with ledger.ErrUnavailable or ledger.ErrConflict are retried up to MaxRetries times
// with exponential backoff between InitialInterval and MaxInterval.
type RetryPolicy struct {
	CallTimeout     time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		CallTimeout:     30 * time.Second,
		MaxRetries:      3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     4 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Coordinator implements zkgate.Invalidator on a ledger.Authority. It is safe for concurrent use.
type Coordinator struct {
	authority ledger.Authority
	params    *zkgate.DomainParameters
	policy    RetryPolicy

	mu       sync.Mutex
	inflight map[string]struct{}
}

var _ zkgate.Invalidator = (*Coordinator)(nil)

func NewCoordinator(authority ledger.Authority, params *zkgate.DomainParameters, policy RetryPolicy) *Coordinator {
	return &Coordinator{
		authority: authority,
		params:    params,
		policy:    policy,
		inflight:  map[string]struct{}{},
	}
}

func (c *Coordinator) reserve(invalidationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[invalidationID]; ok {
		return false
	}
	c.inflight[invalidationID] = struct{}{}
	return true
}

func (c *Coordinator) release(invalidationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, invalidationID)
}

// RequestInvalidation revokes y at the authority. It is idempotent: if y is not valid (anymore)
// the result is AlreadyInvalidated and no transaction is made. Transient ledger failures are
// retried according to the policy; once exhausted the error matches zkgate.ErrServiceUnavailable.
// A revocation this call submitted but could not confirm in time is awaited, never sent twice.
func (c *Coordinator) RequestInvalidation(ctx context.Context, y *big.Int, invalidationID string) (*zkgate.InvalidationResult, error) {
	if y == nil || !zkgate.ValidInvalidationID(invalidationID) {
		return nil, zkgate.ErrMalformedInput
	}
	if !c.reserve(invalidationID) {
		return nil, ErrReplay
	}
	defer c.release(invalidationID)

	log := Logger.WithField("invalidation_id", invalidationID)
	ref, err := c.transact(ctx, func(callCtx context.Context) (ledger.TxRef, error) {
		valid, err := c.authority.IsKeyValid(callCtx, y)
		if err != nil {
			return "", err
		}
		if !valid {
			return "", ledger.ErrAlreadyInvalid
		}
		return c.authority.InvalidateKey(callCtx, y)
	})
	var result *zkgate.InvalidationResult
	switch {
	case errors.Is(err, ledger.ErrAlreadyInvalid), errors.Is(err, ledger.ErrUnknownKey):
		result = &zkgate.InvalidationResult{Status: zkgate.AlreadyInvalidated}
	case err != nil:
		log.WithError(err).Warn("key invalidation failed")
		return nil, err
	default:
		result = &zkgate.InvalidationResult{Status: zkgate.Invalidated, TxRef: string(ref)}
	}
	log.WithField("status", result.Status).Info("key invalidation handled")
	return result, nil
}

// UpdatePublicKey replaces oldY by newY after verifying that proof was made by the holder of
// the secret behind oldY for this rotation. An invalid proof fails with ErrAuth.
func (c *Coordinator) UpdatePublicKey(ctx context.Context, oldY, newY *big.Int, invalidationID string, proof *zkgate.OwnershipProof) (*zkgate.InvalidationResult, error) {
	if !zkgate.VerifyOwnership(c.params, oldY, newY, invalidationID, proof) {
		return nil, ErrAuth
	}
	if !c.reserve(invalidationID) {
		return nil, ErrReplay
	}
	defer c.release(invalidationID)

	ref, err := c.transact(ctx, func(callCtx context.Context) (ledger.TxRef, error) {
		return c.authority.UpdateKey(callCtx, oldY, newY, invalidationID, proof)
	})
	if err != nil {
		Logger.WithField("invalidation_id", invalidationID).WithError(err).Warn("key update failed")
		return nil, err
	}
	return &zkgate.InvalidationResult{Status: zkgate.Updated, TxRef: string(ref)}, nil
}

// RegisterPublicKey enrolls y at the authority.
func (c *Coordinator) RegisterPublicKey(ctx context.Context, y *big.Int) (ledger.TxRef, error) {
	return c.transact(ctx, func(callCtx context.Context) (ledger.TxRef, error) {
		return c.authority.RegisterKey(callCtx, y)
	})
}

// transact runs a state changing op under the retry policy. Once an attempt leaves its
// transaction pending, later attempts wait for that transaction instead of running op again.
func (c *Coordinator) transact(ctx context.Context, op func(ctx context.Context) (ledger.TxRef, error)) (ledger.TxRef, error) {
	confirmer, _ := c.authority.(ledger.Confirmer)
	var ref, pending ledger.TxRef
	err := c.retry(ctx, func(callCtx context.Context) (err error) {
		if pending != "" {
			ref, err = pending, confirmer.AwaitTx(callCtx, pending)
		} else {
			ref, err = op(callCtx)
		}
		var p *ledger.PendingError
		if confirmer != nil && errors.As(err, &p) {
			pending = p.Ref
			Logger.WithField("tx", pending).Debug("transaction pending")
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// retry runs op under the retry policy. Each attempt gets its own CallTimeout.
func (c *Coordinator) retry(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.policy.CallTimeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if transient(err) && ctx.Err() == nil {
			Logger.WithError(err).Debugf("ledger call failed (attempt %d), retrying", attempt)
			return err
		}
		return backoff.Permanent(err)
	}, c.policy.backOff(ctx))

	if err != nil && (transient(err) || ctx.Err() != nil) {
		return errors.WrapPrefix(zkgate.ErrServiceUnavailable, err.Error(), 0)
	}
	return err
}

func transient(err error) bool {
	return ledger.Retryable(err) || errors.Is(err, context.DeadlineExceeded)
}
