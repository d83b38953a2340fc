// Package optical carries proof payloads over a one-way optical channel as QR codes.
// Encoding picks the most robust error correction level that fits the payload; decoding reads
// a code from a camera frame or image file.
package optical

import (
	"image"
	"image/png"
	"io"

	"github.com/go-errors/errors"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/envelope"
	"github.com/skip2/go-qrcode"
)

// DefaultModuleSize is the number of pixels per QR module in rendered images.
const DefaultModuleSize = 4

// Byte mode capacity of a version 40 code per error correction level.
var levels = []struct {
	level    qrcode.RecoveryLevel
	capacity int
}{
	{qrcode.Highest, 1273}, // H
	{qrcode.High, 1663},    // Q
	{qrcode.Medium, 2331},  // M
	{qrcode.Low, 2953},     // L
}

// MaxPayload is the largest payload that fits in a single code.
const MaxPayload = 2953

// opticalError is a failure that also matches zkgate.ErrMalformedInput.
type opticalError struct {
	msg string
}

func (e *opticalError) Error() string { return e.msg }
func (e *opticalError) Unwrap() error { return zkgate.ErrMalformedInput }

var (
	ErrCapacityExceeded = errors.New("optical: payload exceeds QR capacity")
	ErrEmptyPayload     = errors.New("optical: empty payload")
	// ErrUnreadable is returned when no rendering of a payload decodes back to it.
	ErrUnreadable = errors.New("optical: rendered code does not read back")

	// ErrScan is returned when no code can be found in an image.
	ErrScan error = &opticalError{"optical: no QR code found"}
	// ErrFormat is returned when a decoded code does not hold the expected payload.
	ErrFormat error = &opticalError{"optical: invalid payload format"}
)

// Encoder renders payloads as QR codes.
type Encoder struct {
	// ModuleSize is the number of pixels per module in rendered images; DefaultModuleSize if 0.
	ModuleSize int
}

// Code is an encoded payload.
type Code struct {
	Content string
	Level   qrcode.RecoveryLevel

	qr         *qrcode.QRCode
	moduleSize int
}

// Encode returns the code for payload at the highest error correction level whose capacity
// fits it. Payloads larger than MaxPayload fail with ErrCapacityExceeded; nothing is truncated.
// Every code is decoded from its own rendering before it is returned; a level or module size
// whose rendering does not read back is skipped for the next one.
func (enc *Encoder) Encode(payload []byte) (*Code, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	moduleSize := enc.ModuleSize
	if moduleSize <= 0 {
		moduleSize = DefaultModuleSize
	}
	fits := false
	for _, l := range levels {
		if len(payload) > l.capacity {
			continue
		}
		fits = true
		qr, err := qrcode.New(string(payload), l.level)
		if err != nil {
			return nil, errors.WrapPrefix(ErrCapacityExceeded, err.Error(), 0)
		}
		for _, size := range []int{moduleSize, 2 * moduleSize} {
			code := &Code{Content: string(payload), Level: l.level, qr: qr, moduleSize: size}
			if code.readsBack() {
				return code, nil
			}
		}
	}
	if !fits {
		return nil, ErrCapacityExceeded
	}
	return nil, ErrUnreadable
}

func (c *Code) readsBack() bool {
	text, err := Decode(c.Image())
	return err == nil && text == c.Content
}

// EncodeEnvelope encodes the text form of an encrypted envelope.
func (enc *Encoder) EncodeEnvelope(env *envelope.EncryptedEnvelope) (*Code, error) {
	text, err := env.MarshalText()
	if err != nil {
		return nil, err
	}
	return enc.Encode(text)
}

// EncodeBundle encodes the plaintext form of a proof bundle.
func (enc *Encoder) EncodeBundle(bundle *zkgate.ProofBundle) (*Code, error) {
	text, err := bundle.MarshalText()
	if err != nil {
		return nil, err
	}
	return enc.Encode(text)
}

// Version returns the QR version (1-40) of the code.
func (c *Code) Version() int {
	return c.qr.VersionNumber
}

// Image renders the code including its quiet zone.
func (c *Code) Image() image.Image {
	return c.qr.Image(-c.moduleSize)
}

// PNG renders the code as a PNG image.
func (c *Code) PNG() ([]byte, error) {
	return c.qr.PNG(-c.moduleSize)
}

// Terminal renders the code with unicode half blocks for display on a terminal.
func (c *Code) Terminal() string {
	return c.qr.ToSmallString(false)
}

var (
	tryHarder = map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	pureBarcode = map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_PURE_BARCODE: true,
	}
)

// Decoding strategies in the order they are tried. Camera frames are served by the first;
// the others pick up dense codes the hybrid binarizer fails to locate.
var strategies = []struct {
	binarizer func(gozxing.LuminanceSource) gozxing.Binarizer
	hints     map[gozxing.DecodeHintType]interface{}
}{
	{gozxing.NewHybridBinarizer, tryHarder},
	{gozxing.NewHybridBinarizer, pureBarcode},
	{gozxing.NewGlobalHistgramBinarizer, pureBarcode},
	{gozxing.NewGlobalHistgramBinarizer, tryHarder},
}

// Decode reads the payload of the QR code in img.
func Decode(img image.Image) (string, error) {
	src := gozxing.NewLuminanceSourceFromImage(img)
	for _, strategy := range strategies {
		bmp, err := gozxing.NewBinaryBitmap(strategy.binarizer(src))
		if err != nil {
			continue
		}
		result, err := gozxingqr.NewQRCodeReader().Decode(bmp, strategy.hints)
		if err != nil {
			continue
		}
		if text := result.GetText(); text != "" {
			return text, nil
		}
	}
	return "", ErrScan
}

// DecodePNG reads a PNG image from r and decodes the QR code in it.
func DecodePNG(r io.Reader) (string, error) {
	img, err := png.Decode(r)
	if err != nil {
		return "", ErrScan
	}
	return Decode(img)
}

// DecodeEnvelope decodes an encrypted envelope from img.
func DecodeEnvelope(img image.Image) (*envelope.EncryptedEnvelope, error) {
	text, err := Decode(img)
	if err != nil {
		return nil, err
	}
	env, err := envelope.ParseEnvelope([]byte(text))
	if err != nil {
		return nil, ErrFormat
	}
	return env, nil
}

// DecodeBundle decodes a plaintext proof bundle from img.
func DecodeBundle(img image.Image) (*zkgate.ProofBundle, error) {
	text, err := Decode(img)
	if err != nil {
		return nil, err
	}
	bundle, err := zkgate.ParseProofBundle([]byte(text))
	if err != nil {
		return nil, ErrFormat
	}
	return bundle, nil
}
