package safeprime

import (
	"context"
	"testing"
	"time"

	"github.com/privacybydesign/zkgate/big"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	x, err := Generate(context.Background(), 256)

	require.NoError(t, err)
	require.NotNil(t, x)
	require.Equal(t, 256, x.BitLen())
	require.True(t, x.ProbablyPrime(40), "Generated number was not prime")

	y := new(big.Int).Rsh(x, 1)
	require.True(t, y.ProbablyPrime(40), "Generated number was not a safe prime")
}

func TestGenerateConcurrent(t *testing.T) {
	x, err := GenerateConcurrent(context.Background(), 128)
	require.NoError(t, err)
	require.True(t, ProbablySafePrime(x, 40))
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := GenerateConcurrent(ctx, 2048)
	require.Error(t, err)
}

func TestProbablySafePrime(t *testing.T) {
	require.True(t, ProbablySafePrime(big.NewInt(23), 40))
	require.True(t, ProbablySafePrime(big.NewInt(26903), 40))
	require.False(t, ProbablySafePrime(big.NewInt(10009), 40)) // prime, but 5004 is not
	require.False(t, ProbablySafePrime(big.NewInt(20015), 40))
	require.False(t, ProbablySafePrime(big.NewInt(2), 40))
}

func TestConvenient(t *testing.T) {
	for _, size := range []int{250, 512, 1024, 2048, 4096} {
		p := Convenient(size)
		require.NotNil(t, p, "missing result for %d", size)
		require.True(t, p.BitLen() >= size, "prime too short for %d", size)
	}
	require.Nil(t, Convenient(8192))

	// The table values are handed out as fresh copies.
	a, b := Convenient(512), Convenient(512)
	a.SetInt64(1)
	require.NotEqual(t, 0, a.Cmp(b))
}
