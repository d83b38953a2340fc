// Package envelope implements the hybrid encryption that protects a ProofBundle on the optical
// channel. A fresh 128-bit AES-GCM key encrypts the bundle's text form and is itself wrapped
// with RSA-OAEP (SHA-256) under the gate's public key. Only the holder of the gate's private key
// can open the envelope; tampering with any field is detected.
package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/sirupsen/logrus"
	"github.com/tink-crypto/tink-go/v2/aead/subtle"
	"github.com/tink-crypto/tink-go/v2/subtle/random"
)

const (
	// KeySize is the size of the symmetric content key.
	KeySize = 16
	// NonceSize is the size of the AES-GCM IV.
	NonceSize = 12
	// tagSize is the size of the AES-GCM authentication tag.
	tagSize = 16
)

var Logger = logrus.StandardLogger()

// cryptoError is a failure that also matches zkgate.ErrCryptoFailure.
type cryptoError struct {
	msg string
}

func (e *cryptoError) Error() string { return e.msg }
func (e *cryptoError) Unwrap() error { return zkgate.ErrCryptoFailure }

var (
	// ErrUnwrap is returned when the content key cannot be unwrapped with the gate key.
	ErrUnwrap error = &cryptoError{"envelope: key unwrap failed"}
	// ErrIntegrity is returned when the ciphertext or its associated data has been modified.
	ErrIntegrity error = &cryptoError{"envelope: integrity check failed"}
)

// EncryptedEnvelope is an encrypted ProofBundle as carried on the optical channel.
// Its text form is base64(WrappedKey),base64(Ciphertext),base64(Nonce).
type EncryptedEnvelope struct {
	WrappedKey []byte
	Ciphertext []byte
	Nonce      []byte
}

// associatedData binds the wire version and the wrapped key to the ciphertext, so that neither
// can be swapped without failing the integrity check.
func associatedData(wrappedKey []byte) []byte {
	ad := make([]byte, 0, 16+len(wrappedKey))
	ad = append(ad, []byte("zkgate-envelope")...)
	ad = append(ad, byte(zkgate.WireVersion))
	return append(ad, wrappedKey...)
}

// Seal encrypts the text form of bundle for the holder of the private key matching pk.
// Every call uses a fresh content key and nonce.
func Seal(bundle *zkgate.ProofBundle, pk *rsa.PublicKey) (*EncryptedEnvelope, error) {
	plaintext, err := bundle.MarshalText()
	if err != nil {
		return nil, err
	}
	return seal(plaintext, pk)
}

func seal(plaintext []byte, pk *rsa.PublicKey) (*EncryptedEnvelope, error) {
	if pk == nil {
		return nil, errors.New("envelope: no gate public key")
	}
	key := random.GetRandomBytes(KeySize)
	defer wipe(key)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pk, key, nil)
	if err != nil {
		return nil, errors.WrapPrefix(err, "envelope: failed to wrap key", 0)
	}
	cipher, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, errors.WrapPrefix(err, "envelope: failed to create cipher", 0)
	}
	ct, err := cipher.Encrypt(plaintext, associatedData(wrapped))
	if err != nil {
		return nil, errors.WrapPrefix(err, "envelope: encryption failed", 0)
	}

	return &EncryptedEnvelope{
		WrappedKey: wrapped,
		Ciphertext: ct[NonceSize:],
		Nonce:      ct[:NonceSize],
	}, nil
}

// Open decrypts env with the gate private key and parses the bundle. It fails with ErrUnwrap
// or ErrIntegrity (both matching zkgate.ErrCryptoFailure) when decryption fails, and with an
// error matching zkgate.ErrMalformedInput when the plaintext is not a valid bundle.
//
// When the key cannot be unwrapped, decryption is still attempted with a random key so that
// both failure paths do the same work.
func Open(env *EncryptedEnvelope, sk *rsa.PrivateKey) (*zkgate.ProofBundle, error) {
	if sk == nil {
		return nil, errors.New("envelope: no gate private key")
	}
	if env == nil || len(env.Nonce) != NonceSize || len(env.Ciphertext) < tagSize || len(env.WrappedKey) == 0 {
		return nil, errors.WrapPrefix(zkgate.ErrMalformedInput, "envelope: invalid field sizes", 0)
	}

	unwrapFailed := false
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, sk, env.WrappedKey, nil)
	if err != nil || len(key) != KeySize {
		unwrapFailed = true
		key = random.GetRandomBytes(KeySize)
	}
	defer wipe(key)

	cipher, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, ErrUnwrap
	}
	ct := make([]byte, 0, len(env.Nonce)+len(env.Ciphertext))
	ct = append(ct, env.Nonce...)
	ct = append(ct, env.Ciphertext...)
	plaintext, err := cipher.Decrypt(ct, associatedData(env.WrappedKey))
	if unwrapFailed {
		Logger.Debug("envelope: key unwrap failed")
		return nil, ErrUnwrap
	}
	if err != nil {
		Logger.Debug("envelope: integrity check failed")
		return nil, ErrIntegrity
	}

	return zkgate.ParseProofBundle(plaintext)
}

// MarshalText implements encoding.TextMarshaler.
func (env *EncryptedEnvelope) MarshalText() ([]byte, error) {
	if len(env.WrappedKey) == 0 || len(env.Ciphertext) == 0 || len(env.Nonce) == 0 {
		return nil, errors.WrapPrefix(zkgate.ErrMalformedInput, "envelope: empty field", 0)
	}
	return zkgate.JoinFields(encode(env.WrappedKey), encode(env.Ciphertext), encode(env.Nonce)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Fields must be standard base64.
func (env *EncryptedEnvelope) UnmarshalText(text []byte) error {
	fields, err := zkgate.SplitFields(text, 3)
	if err != nil {
		return err
	}
	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		if decoded[i], err = decode(f); err != nil {
			return errors.WrapPrefix(zkgate.ErrMalformedInput, "envelope: "+err.Error(), 0)
		}
	}
	if len(decoded[2]) != NonceSize {
		return errors.WrapPrefix(zkgate.ErrMalformedInput, "envelope: invalid nonce size", 0)
	}
	env.WrappedKey, env.Ciphertext, env.Nonce = decoded[0], decoded[1], decoded[2]
	return nil
}

// ParseEnvelope parses the text form of an EncryptedEnvelope.
func ParseEnvelope(text []byte) (*EncryptedEnvelope, error) {
	env := new(EncryptedEnvelope)
	if err := env.UnmarshalText(text); err != nil {
		return nil, err
	}
	return env, nil
}

func encode(b []byte) []byte {
	enc := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(enc, b)
	return enc
}

func decode(b []byte) ([]byte, error) {
	return base64.StdEncoding.Strict().DecodeString(string(bytes.TrimSpace(b)))
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
