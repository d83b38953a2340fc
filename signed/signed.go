// Package signed contains
// (1) convenience functions for ECDSA private and public key handling, and for signing and
// verifying byte slices with ECDSA;
// (2) functions for marshaling structs to signed bytes, and verifying and unmarshaling signed bytes
// back to structs. The ledger store uses these to sign every state change it records.
package signed

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/internal/cbor"
)

type (
	// Message is a signed message, created and signed by MarshalSign, and verified and parsed
	// by UnmarshalVerify.
	Message []byte

	// message-signature tuple
	tuple struct {
		Msg, Sig []byte
	}
)

var (
	ErrInvalidSignature = errors.New("ecdsa signature was invalid")
	ErrNoPEMBlock       = errors.New("no PEM block found")
)

func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// Key (un)marshaling

func UnmarshalPublicKey(bts []byte) (*ecdsa.PublicKey, error) {
	genericPk, err := x509.ParsePKIXPublicKey(bts)
	if err != nil {
		return nil, err
	}
	pk, ok := genericPk.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("invalid ecdsa public key")
	}
	return pk, nil
}

func UnmarshalPemPublicKey(bts []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(bts)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	return UnmarshalPublicKey(block.Bytes)
}

func MarshalPemPublicKey(pk *ecdsa.PublicKey) ([]byte, error) {
	bts, err := x509.MarshalPKIXPublicKey(pk)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Failed to serialize public key", 0)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: bts}), nil
}

func UnmarshalPemPrivateKey(bts []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(bts)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func MarshalPemPrivateKey(sk *ecdsa.PrivateKey) ([]byte, error) {
	bts, err := x509.MarshalECPrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: bts}), nil
}

// LoadOrGenerateKey reads a PEM private key from path. If the file does not exist a new key
// is generated and written there with mode 0600.
func LoadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	bts, err := os.ReadFile(path)
	if err == nil {
		return UnmarshalPemPrivateKey(bts)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	sk, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if bts, err = MarshalPemPrivateKey(sk); err != nil {
		return nil, err
	}
	if err = os.WriteFile(path, bts, 0600); err != nil {
		return nil, errors.WrapPrefix(err, "failed to write signing key", 0)
	}
	return sk, nil
}

// Sign and verify bytes

func Sign(sk *ecdsa.PrivateKey, bts []byte) ([]byte, error) {
	hash := sha256.Sum256(bts)
	r, s, err := ecdsa.Sign(rand.Reader, sk, hash[:])
	if err != nil {
		return nil, err
	}
	return asn1.Marshal([]*big.Int{r, s})
}

func Verify(pk *ecdsa.PublicKey, bts []byte, signature []byte) error {
	var ints []*big.Int
	if _, err := asn1.Unmarshal(signature, &ints); err != nil {
		return err
	}
	if len(ints) != 2 {
		return ErrInvalidSignature
	}
	hash := sha256.Sum256(bts)
	if !ecdsa.Verify(pk, hash[:], ints[0], ints[1]) {
		return ErrInvalidSignature
	}
	return nil
}

// create, verify and (un)marshal signed messages

// MarshalSign marshals the message to deterministic CBOR, signs the resulting bytes, and returns
// signed message bytes suitable for verifying with UnmarshalVerify.
func MarshalSign(sk *ecdsa.PrivateKey, message interface{}) (Message, error) {
	bts, err := cbor.Marshal(message)
	if err != nil {
		return nil, err
	}

	signature, err := Sign(sk, bts)
	if err != nil {
		return nil, err
	}

	return cbor.Marshal(&tuple{bts, signature})
}

// UnmarshalVerify verifies the signature a Message created by MarshalSign, and unmarshals the
// message bytes into dst.
func UnmarshalVerify(pk *ecdsa.PublicKey, signed Message, dst interface{}) error {
	var tmp tuple
	if err := cbor.Unmarshal(signed, &tmp); err != nil {
		return err
	}

	if err := Verify(pk, tmp.Msg, tmp.Sig); err != nil {
		return err
	}

	return cbor.Unmarshal(tmp.Msg, dst)
}
