package optical

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) *zkgate.ProofBundle {
	params, err := zkgate.GenerateParameters(512)
	require.NoError(t, err)
	kp, err := zkgate.DeriveKeyPair([]byte("optical"), params)
	require.NoError(t, err)
	bundle, err := zkgate.Prove(params, kp, "gate", nil)
	require.NoError(t, err)
	return bundle
}

func TestBundleRoundTrip(t *testing.T) {
	bundle := testBundle(t)
	code, err := (&Encoder{}).EncodeBundle(bundle)
	require.NoError(t, err)
	require.Equal(t, qrcode.Highest, code.Level)

	pngBytes, err := code.PNG()
	require.NoError(t, err)
	text, err := DecodePNG(bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.Equal(t, code.Content, text)

	decoded, err := DecodeBundle(code.Image())
	require.NoError(t, err)
	require.Zero(t, bundle.A.Cmp(decoded.A))
	require.Zero(t, bundle.S.Cmp(decoded.S))
	require.Zero(t, bundle.Y.Cmp(decoded.Y))
	require.Equal(t, bundle.InvalidationID, decoded.InvalidationID)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	sk, err := envelope.GenerateGateKey(2048)
	require.NoError(t, err)
	bundle := testBundle(t)
	env, err := envelope.Seal(bundle, &sk.PublicKey)
	require.NoError(t, err)

	code, err := (&Encoder{ModuleSize: 3}).EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(code.Image())
	require.NoError(t, err)
	require.Equal(t, env, decoded)

	opened, err := envelope.Open(decoded, sk)
	require.NoError(t, err)
	require.Equal(t, bundle.InvalidationID, opened.InvalidationID)
}

func TestEnvelopeRoundTripDeploymentSizes(t *testing.T) {
	sk, err := envelope.GenerateGateKey(2048)
	require.NoError(t, err)
	samples := 20
	if testing.Short() {
		samples = 4
	}
	for _, bits := range []int{1024, 2048} {
		params, err := zkgate.RecommendedParameters(bits)
		require.NoError(t, err)
		for i := 0; i < samples; i++ {
			kp, err := zkgate.DeriveKeyPair([]byte{byte(bits >> 8), byte(i)}, params)
			require.NoError(t, err)
			bundle, err := zkgate.Prove(params, kp, "gate", nil)
			require.NoError(t, err)
			env, err := envelope.Seal(bundle, &sk.PublicKey)
			require.NoError(t, err)

			code, err := (&Encoder{}).EncodeEnvelope(env)
			require.NoError(t, err, "bits %d sample %d", bits, i)

			decoded, err := DecodeEnvelope(code.Image())
			require.NoError(t, err, "bits %d sample %d version %d", bits, i, code.Version())
			require.Equal(t, env, decoded)

			pngBytes, err := code.PNG()
			require.NoError(t, err)
			text, err := DecodePNG(bytes.NewReader(pngBytes))
			require.NoError(t, err, "bits %d sample %d png", bits, i)
			require.Equal(t, code.Content, text)
		}
	}
}

func TestLevelSelection(t *testing.T) {
	enc := &Encoder{}
	for _, c := range []struct {
		size  int
		level qrcode.RecoveryLevel
	}{
		{10, qrcode.Highest},
		{1200, qrcode.Highest},
		{1300, qrcode.High},
		{1600, qrcode.High},
		{2000, qrcode.Medium},
		{2900, qrcode.Low},
	} {
		code, err := enc.Encode(bytes.Repeat([]byte("z"), c.size))
		require.NoError(t, err, "size %d", c.size)
		require.Equal(t, c.level, code.Level, "size %d", c.size)
	}
}

func TestCapacityExceeded(t *testing.T) {
	_, err := (&Encoder{}).Encode(bytes.Repeat([]byte("z"), MaxPayload+1))
	require.True(t, errors.Is(err, ErrCapacityExceeded))

	_, err = (&Encoder{}).Encode(nil)
	require.True(t, errors.Is(err, ErrEmptyPayload))
}

func TestDecodeFailures(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	_, err := Decode(blank)
	require.True(t, errors.Is(err, ErrScan))
	require.True(t, errors.Is(err, zkgate.ErrMalformedInput))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))
	_, err = DecodePNG(&buf)
	require.True(t, errors.Is(err, ErrScan))

	_, err = DecodePNG(strings.NewReader("not a png"))
	require.True(t, errors.Is(err, ErrScan))

	code, err := (&Encoder{}).Encode([]byte("hello, world"))
	require.NoError(t, err)
	_, err = DecodeEnvelope(code.Image())
	require.True(t, errors.Is(err, ErrFormat))
	_, err = DecodeBundle(code.Image())
	require.True(t, errors.Is(err, ErrFormat))
	require.True(t, errors.Is(err, zkgate.ErrMalformedInput))
}

func TestTerminal(t *testing.T) {
	code, err := (&Encoder{}).Encode([]byte("terminal"))
	require.NoError(t, err)
	require.NotEmpty(t, code.Terminal())
	require.Greater(t, code.Version(), 0)
}
