package ledger

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/signed"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func init() {
	Logger = logrus.StandardLogger()
	Logger.SetLevel(logrus.FatalLevel)
}

func openStore(t *testing.T, params *zkgate.DomainParameters) *Store {
	sk, err := signed.GenerateKey()
	require.NoError(t, err)
	store, err := Open(filepath.Join(t.TempDir(), "ledger"), sk, params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterInvalidate(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, nil)
	y := big.NewInt(18)

	valid, err := store.IsKeyValid(ctx, y)
	require.NoError(t, err)
	require.False(t, valid)
	_, err = store.InvalidateKey(ctx, y)
	require.True(t, errors.Is(err, ErrUnknownKey))

	ref1, err := store.RegisterKey(ctx, y)
	require.NoError(t, err)
	require.NotEmpty(t, ref1)
	_, err = store.RegisterKey(ctx, y)
	require.True(t, errors.Is(err, ErrKeyExists))

	valid, err = store.IsKeyValid(ctx, y)
	require.NoError(t, err)
	require.True(t, valid)

	ref2, err := store.InvalidateKey(ctx, y)
	require.NoError(t, err)
	require.NotEqual(t, ref1, ref2)

	valid, err = store.IsKeyValid(ctx, y)
	require.NoError(t, err)
	require.False(t, valid)
	state, err := store.KeyStatus(ctx, y)
	require.NoError(t, err)
	require.Equal(t, KeyInvalidated, state)

	_, err = store.InvalidateKey(ctx, y)
	require.True(t, errors.Is(err, ErrAlreadyInvalid))
}

func TestConcurrentInvalidation(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, nil)
	y := big.NewInt(123456789)
	_, err := store.RegisterKey(ctx, y)
	require.NoError(t, err)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.InvalidateKey(ctx, y)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, ErrAlreadyInvalid) {
				already++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
	require.Equal(t, n-1, already)

	records, err := store.Records(1)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, nil)

	var refs []TxRef
	for i := int64(2); i < 6; i++ {
		ref, err := store.RegisterKey(ctx, big.NewInt(i))
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	ref, err := store.InvalidateKey(ctx, big.NewInt(3))
	require.NoError(t, err)
	refs = append(refs, ref)

	records, err := store.Records(1)
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.NoError(t, VerifyChain(store.PublicKey(), records))

	for i, rec := range records {
		event, err := VerifyRecord(store.PublicKey(), rec)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), event.Seq)
		recRef, err := RecordRef(rec)
		require.NoError(t, err)
		require.Equal(t, refs[i], recRef)
	}
	last, err := VerifyRecord(store.PublicKey(), records[4])
	require.NoError(t, err)
	require.Equal(t, EventInvalidate, last.Kind)
	require.Equal(t, []byte{3}, last.Key)

	tail, err := store.Records(4)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Error(t, VerifyChain(store.PublicKey(), tail))

	other, err := signed.GenerateKey()
	require.NoError(t, err)
	_, err = VerifyRecord(&other.PublicKey, records[0])
	require.True(t, errors.Is(err, signed.ErrInvalidSignature))

	records[1], records[2] = records[2], records[1]
	require.Error(t, VerifyChain(store.PublicKey(), records))
}

func TestUpdateKey(t *testing.T) {
	ctx := context.Background()
	params, err := zkgate.GenerateParameters(256)
	require.NoError(t, err)
	store := openStore(t, params)

	oldKey, err := zkgate.DeriveKeyPair([]byte("old"), params)
	require.NoError(t, err)
	newKey, err := zkgate.DeriveKeyPair([]byte("new"), params)
	require.NoError(t, err)
	id, err := zkgate.NewInvalidationID(rand.Reader)
	require.NoError(t, err)

	_, err = store.RegisterKey(ctx, oldKey.PublicKey)
	require.NoError(t, err)
	// entering the gate invalidates the key; the holder can still rotate it
	_, err = store.InvalidateKey(ctx, oldKey.PublicKey)
	require.NoError(t, err)

	forged, err := zkgate.ProveOwnership(params, newKey, newKey.PublicKey, id, nil)
	require.NoError(t, err)
	_, err = store.UpdateKey(ctx, oldKey.PublicKey, newKey.PublicKey, id, forged)
	require.True(t, errors.Is(err, ErrAuth))

	proof, err := zkgate.ProveOwnership(params, oldKey, newKey.PublicKey, id, nil)
	require.NoError(t, err)
	ref, err := store.UpdateKey(ctx, oldKey.PublicKey, newKey.PublicKey, id, proof)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	state, err := store.KeyStatus(ctx, oldKey.PublicKey)
	require.NoError(t, err)
	require.Equal(t, KeyReplaced, state)
	valid, err := store.IsKeyValid(ctx, newKey.PublicKey)
	require.NoError(t, err)
	require.True(t, valid)

	_, err = store.UpdateKey(ctx, oldKey.PublicKey, newKey.PublicKey, id, proof)
	require.True(t, errors.Is(err, ErrAlreadyInvalid))
}

func TestCanceledContext(t *testing.T) {
	store := openStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.RegisterKey(ctx, big.NewInt(5))
	require.True(t, errors.Is(err, ErrUnavailable))
	require.True(t, errors.Is(err, zkgate.ErrLedgerUnavailable))
	require.True(t, Retryable(err))
	require.False(t, Retryable(ErrAlreadyInvalid))
}
