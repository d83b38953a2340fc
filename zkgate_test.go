package zkgate

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/internal/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGateID = "gate-01"

var (
	testParamsOnce sync.Once
	testParams     *DomainParameters
)

func init() {
	Logger = logrus.StandardLogger()
	Logger.SetLevel(logrus.FatalLevel)
}

// toyParams returns p = 23, g = 2. Only ever used in tests.
func toyParams() *DomainParameters {
	return NewDomainParameters(big.NewInt(23), big.NewInt(2))
}

// realParams returns 512-bit parameters, large enough for the exponentiation table and for
// tampering to be caught with overwhelming probability.
func realParams(t *testing.T) *DomainParameters {
	testParamsOnce.Do(func() {
		var err error
		testParams, err = GenerateParameters(512)
		if err != nil {
			panic(err)
		}
	})
	return testParams
}

func toyKeyPair(x int64) *KeyPair {
	params := toyParams()
	return &KeyPair{
		PublicKey: params.Group().ExpG(new(big.Int), big.NewInt(x)),
		secret:    big.NewInt(x),
	}
}

func TestToyScenario(t *testing.T) {
	params := toyParams()
	require.NoError(t, params.Validate())

	kp := toyKeyPair(6)
	require.Equal(t, int64(18), kp.PublicKey.Int64())

	nonce := &Nonce{r: big.NewInt(3)}
	a := params.Group().ExpG(new(big.Int), big.NewInt(3))
	require.Equal(t, int64(8), a.Int64())

	s, err := Respond(params, nonce, big.NewInt(5), kp)
	require.NoError(t, err)
	require.Equal(t, int64(11), s.Int64())
	require.True(t, Verify(params, kp.PublicKey, a, big.NewInt(5), s))

	// every challenge in Z_(p-1) works
	for e := int64(0); e < 22; e++ {
		s := big.NewInt((3 + e*6) % 22)
		assert.True(t, Verify(params, kp.PublicKey, a, big.NewInt(e), s), "e = %d", e)
	}
	assert.False(t, Verify(params, kp.PublicKey, a, big.NewInt(5), big.NewInt(12)))
}

func TestCompleteness(t *testing.T) {
	params := realParams(t)
	for i := 0; i < 20; i++ {
		kp, err := DeriveKeyPair([]byte(fmt.Sprintf("passphrase %d", i)), params)
		require.NoError(t, err)

		commitment, nonce, err := Commit(params, rand.Reader)
		require.NoError(t, err)
		e, err := RandomChallenge(rand.Reader)
		require.NoError(t, err)
		s, err := Respond(params, nonce, e, kp)
		require.NoError(t, err)

		require.True(t, Verify(params, kp.PublicKey, commitment.A, e, s))
	}
}

func TestSoundnessTampering(t *testing.T) {
	params := realParams(t)
	group := params.Group()
	kp, err := DeriveKeyPair([]byte("correct horse battery staple"), params)
	require.NoError(t, err)

	randomDifferent := func(orig, max *big.Int) *big.Int {
		for {
			v, err := big.RandInt(rand.Reader, max)
			require.NoError(t, err)
			if v.Sign() > 0 && v.Cmp(orig) != 0 {
				return v
			}
		}
	}

	for i := 0; i < 40; i++ {
		commitment, nonce, err := Commit(params, nil)
		require.NoError(t, err)
		e, err := RandomChallenge(nil)
		require.NoError(t, err)
		s, err := Respond(params, nonce, e, kp)
		require.NoError(t, err)
		y, a := kp.PublicKey, commitment.A

		switch i % 4 {
		case 0:
			y = randomDifferent(y, group.P)
		case 1:
			a = randomDifferent(a, group.P)
		case 2:
			e = randomDifferent(e, new(big.Int).Lsh(big.NewInt(1), ChallengeBits))
		case 3:
			s = randomDifferent(s, group.Order)
		}
		require.False(t, Verify(params, y, a, e, s), "tampered component %d accepted", i%4)
	}
}

func TestVerifyRejectsOutOfRange(t *testing.T) {
	params := toyParams()
	kp := toyKeyPair(6)
	a, e, s := big.NewInt(8), big.NewInt(5), big.NewInt(11)
	require.True(t, Verify(params, kp.PublicKey, a, e, s))

	require.False(t, Verify(params, kp.PublicKey, big.NewInt(0), e, s))
	require.False(t, Verify(params, kp.PublicKey, big.NewInt(23+8), e, s))
	require.False(t, Verify(params, big.NewInt(1), big.NewInt(1), e, big.NewInt(0)))
	require.False(t, Verify(params, kp.PublicKey, a, big.NewInt(-5), s))
	require.False(t, Verify(params, kp.PublicKey, a, e, big.NewInt(-11)))
	require.False(t, Verify(params, nil, a, e, s))
}

// recoverSecret computes x = (s1 - s2) / (e1 - e2) mod (p-1), which is what an observer of two
// responses under one nonce can do.
func recoverSecret(order, e1, s1, e2, s2 *big.Int) (*big.Int, bool) {
	de := new(big.Int).Sub(e1, e2)
	de.Mod(de, order)
	inv, ok := common.ModInverse(de, order)
	if !ok {
		return nil, false
	}
	ds := new(big.Int).Sub(s1, s2)
	ds.Mod(ds, order)
	x := ds.Mul(ds, inv)
	return x.Mod(x, order), true
}

func TestNonceReuseLeaksSecret(t *testing.T) {
	t.Run("toy", func(t *testing.T) {
		params := toyParams()
		kp := toyKeyPair(6)
		s1, err := Respond(params, &Nonce{r: big.NewInt(3)}, big.NewInt(5), kp)
		require.NoError(t, err)
		s2, err := Respond(params, &Nonce{r: big.NewInt(3)}, big.NewInt(2), kp)
		require.NoError(t, err)

		x, ok := recoverSecret(params.Group().Order, big.NewInt(5), s1, big.NewInt(2), s2)
		require.True(t, ok)
		require.Equal(t, int64(6), x.Int64())
	})

	t.Run("real", func(t *testing.T) {
		params := realParams(t)
		kp, err := DeriveKeyPair([]byte("reused"), params)
		require.NoError(t, err)
		_, nonce, err := Commit(params, nil)
		require.NoError(t, err)
		r := new(big.Int).Set(nonce.r)

		e1, err := RandomChallenge(nil)
		require.NoError(t, err)
		s1, err := Respond(params, nonce, e1, kp)
		require.NoError(t, err)

		for {
			e2, err := RandomChallenge(nil)
			require.NoError(t, err)
			s2, err := Respond(params, &Nonce{r: new(big.Int).Set(r)}, e2, kp)
			require.NoError(t, err)
			x, ok := recoverSecret(params.Group().Order, e1, s1, e2, s2)
			if !ok {
				continue
			}
			require.Zero(t, x.Cmp(kp.secret))
			break
		}
	})
}

func TestNonceConsumed(t *testing.T) {
	params := toyParams()
	kp := toyKeyPair(6)
	_, nonce, err := Commit(params, nil)
	require.NoError(t, err)
	require.False(t, nonce.Consumed())

	_, err = Respond(params, nonce, big.NewInt(1), kp)
	require.NoError(t, err)
	require.True(t, nonce.Consumed())

	_, err = Respond(params, nonce, big.NewInt(1), kp)
	require.True(t, errors.Is(err, ErrNonceConsumed))
}

func TestCommitRange(t *testing.T) {
	params := toyParams()
	seen := map[int64]bool{}
	for i := 0; i < 500; i++ {
		commitment, nonce, err := Commit(params, nil)
		require.NoError(t, err)
		r := nonce.r.Int64()
		require.True(t, r >= 1 && r <= 21, "r = %d", r)
		require.Zero(t, commitment.A.Cmp(params.Group().ExpG(new(big.Int), nonce.r)))
		seen[r] = true
	}
	require.Len(t, seen, 21)
}

func TestFiatShamirDeterminism(t *testing.T) {
	params := realParams(t)
	a, y := big.NewInt(123456789), big.NewInt(987654321)
	ctx := EntryContext(testGateID, "00112233445566778899aabbccddeeff")

	e1, err := FiatShamirChallenge(params, a, y, ctx...)
	require.NoError(t, err)
	e2, err := FiatShamirChallenge(params, a, y, ctx...)
	require.NoError(t, err)
	require.Zero(t, e1.Cmp(e2))
	require.True(t, e1.Cmp(params.Group().Order) < 0)

	other, err := FiatShamirChallenge(params, a, y, EntryContext("gate-02", "00112233445566778899aabbccddeeff")...)
	require.NoError(t, err)
	require.NotZero(t, e1.Cmp(other))

	swapped, err := FiatShamirChallenge(params, y, a, ctx...)
	require.NoError(t, err)
	require.NotZero(t, e1.Cmp(swapped))

	rotation, err := fiatShamir(params, RotationDomain, a, y, ctx)
	require.NoError(t, err)
	require.NotZero(t, e1.Cmp(rotation))
}

func TestFiatShamirRequiresContext(t *testing.T) {
	params := toyParams()
	_, err := FiatShamirChallenge(params, big.NewInt(8), big.NewInt(18))
	require.True(t, errors.Is(err, ErrMissingContext))
	_, err = FiatShamirChallenge(params, big.NewInt(8), big.NewInt(18), []byte{}, nil)
	require.True(t, errors.Is(err, ErrMissingContext))
}

func TestRandomChallengeRange(t *testing.T) {
	max := new(big.Int).Lsh(big.NewInt(1), ChallengeBits)
	for i := 0; i < 100; i++ {
		e, err := RandomChallenge(nil)
		require.NoError(t, err)
		require.True(t, e.Sign() >= 0 && e.Cmp(max) < 0)
	}
}

func TestDeriveKeyPair(t *testing.T) {
	params := realParams(t)
	kp1, err := DeriveKeyPair([]byte("open sesame"), params)
	require.NoError(t, err)
	kp2, err := DeriveKeyPair([]byte("open sesame"), params)
	require.NoError(t, err)
	require.Zero(t, kp1.PublicKey.Cmp(kp2.PublicKey))

	kp3, err := DeriveKeyPair([]byte("open sesame!"), params)
	require.NoError(t, err)
	require.NotZero(t, kp1.PublicKey.Cmp(kp3.PublicKey))

	expected := common.IntHashSha256([]byte("open sesame"))
	expected.Mod(expected, params.Group().Order)
	require.Zero(t, expected.Cmp(kp1.secret))
}

func TestDeriveKeyPairDegenerate(t *testing.T) {
	params := toyParams()
	for i := 0; ; i++ {
		passphrase := []byte(fmt.Sprintf("pass-%d", i))
		x := common.IntHashSha256(passphrase)
		if x.Mod(x, big.NewInt(22)).Sign() != 0 {
			continue
		}
		_, err := DeriveKeyPair(passphrase, params)
		require.True(t, errors.Is(err, ErrDegenerateSecret))
		return
	}
}

func TestKeyPairHidesSecret(t *testing.T) {
	params := realParams(t)
	kp, err := DeriveKeyPair([]byte("do not print me"), params)
	require.NoError(t, err)

	for _, out := range []string{fmt.Sprintf("%v", kp), fmt.Sprintf("%+v", kp), fmt.Sprint(kp)} {
		require.False(t, strings.Contains(out, kp.secret.String()))
		require.False(t, strings.Contains(out, kp.secret.Text(16)))
	}

	kp.Wipe()
	_, err = Respond(params, &Nonce{r: big.NewInt(3)}, big.NewInt(1), kp)
	require.True(t, errors.Is(err, ErrMalformedInput))
}

func TestProveWithoutKeyPair(t *testing.T) {
	params := toyParams()
	_, err := Prove(params, nil, testGateID, nil)
	require.True(t, errors.Is(err, ErrMalformedInput))
	_, err = Prove(params, &KeyPair{}, testGateID, nil)
	require.True(t, errors.Is(err, ErrMalformedInput))
}

func TestProveVerifyBundle(t *testing.T) {
	params := realParams(t)
	kp, err := DeriveKeyPair([]byte("let me in"), params)
	require.NoError(t, err)

	bundle, err := Prove(params, kp, testGateID, nil)
	require.NoError(t, err)
	require.True(t, ValidInvalidationID(bundle.InvalidationID))
	require.True(t, VerifyBundle(params, bundle, testGateID))
	require.False(t, VerifyBundle(params, bundle, "some-other-gate"))

	text, err := bundle.MarshalText()
	require.NoError(t, err)
	parsed, err := ParseProofBundle(text)
	require.NoError(t, err)
	require.Equal(t, bundle.InvalidationID, parsed.InvalidationID)
	require.True(t, VerifyBundle(params, parsed, testGateID))

	// the invalidation id is bound into the challenge
	other, err := NewInvalidationID(rand.Reader)
	require.NoError(t, err)
	parsed.InvalidationID = other
	require.False(t, VerifyBundle(params, parsed, testGateID))

	second, err := Prove(params, kp, testGateID, nil)
	require.NoError(t, err)
	require.NotEqual(t, bundle.InvalidationID, second.InvalidationID)
	require.NotZero(t, bundle.A.Cmp(second.A))
}

func TestProofBundleText(t *testing.T) {
	bundle := &ProofBundle{
		A:              big.NewInt(8),
		S:              big.NewInt(11),
		Y:              big.NewInt(18),
		InvalidationID: "00112233445566778899aabbccddeeff",
	}
	text, err := bundle.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "CA==,Cw==,Eg==,00112233445566778899aabbccddeeff", string(text))

	for _, bad := range []string{
		"",
		"CA==,Cw==,Eg==",
		"CA==,Cw==,Eg==,00112233445566778899aabbccddeeff,extra",
		"CA==,,Eg==,00112233445566778899aabbccddeeff",
		"CA=,Cw==,Eg==,00112233445566778899aabbccddeeff",
		"CA==,Cw==,Eg==,00112233445566778899AABBCCDDEEFF",
		"CA==,Cw==,Eg==,0011223344556677",
	} {
		_, err := ParseProofBundle([]byte(bad))
		require.True(t, errors.Is(err, ErrMalformedInput), "accepted %q", bad)
	}

	bundle.InvalidationID = "short"
	_, err = bundle.MarshalText()
	require.True(t, errors.Is(err, ErrMalformedInput))
}

func TestOwnershipProof(t *testing.T) {
	params := realParams(t)
	oldKey, err := DeriveKeyPair([]byte("old passphrase"), params)
	require.NoError(t, err)
	newKey, err := DeriveKeyPair([]byte("new passphrase"), params)
	require.NoError(t, err)
	id, err := NewInvalidationID(rand.Reader)
	require.NoError(t, err)

	proof, err := ProveOwnership(params, oldKey, newKey.PublicKey, id, nil)
	require.NoError(t, err)
	require.True(t, VerifyOwnership(params, oldKey.PublicKey, newKey.PublicKey, id, proof))

	otherID, err := NewInvalidationID(rand.Reader)
	require.NoError(t, err)
	require.False(t, VerifyOwnership(params, oldKey.PublicKey, newKey.PublicKey, otherID, proof))
	require.False(t, VerifyOwnership(params, oldKey.PublicKey, oldKey.PublicKey, id, proof))
	require.False(t, VerifyOwnership(params, newKey.PublicKey, newKey.PublicKey, id, proof))

	text, err := proof.MarshalText()
	require.NoError(t, err)
	parsed := new(OwnershipProof)
	require.NoError(t, parsed.UnmarshalText(text))
	require.True(t, VerifyOwnership(params, oldKey.PublicKey, newKey.PublicKey, id, parsed))

	require.True(t, errors.Is(parsed.UnmarshalText([]byte("CA==")), ErrMalformedInput))
}
