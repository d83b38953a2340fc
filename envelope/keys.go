package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/go-errors/errors"
)

// MinGateKeyBits is the smallest RSA modulus accepted for a gate key.
const MinGateKeyBits = 2048

var (
	ErrNoPEMBlock  = errors.New("envelope: no PEM block found")
	ErrNotRSAKey   = errors.New("envelope: key is not an RSA key")
	ErrKeyTooSmall = errors.New("envelope: RSA key too small")
)

// GenerateGateKey generates a gate RSA keypair. Gate keys are provisioned offline; the gate
// server only loads them.
func GenerateGateKey(bits int) (*rsa.PrivateKey, error) {
	if bits < MinGateKeyBits {
		return nil, ErrKeyTooSmall
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// ParsePrivateKey parses a PEM encoded RSA private key in PKCS#8 or PKCS#1 form.
func ParsePrivateKey(bts []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(bts)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	var sk *rsa.PrivateKey
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		var ok bool
		if sk, ok = key.(*rsa.PrivateKey); !ok {
			return nil, ErrNotRSAKey
		}
	} else if sk, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return nil, errors.WrapPrefix(err, "envelope: failed to parse private key", 0)
	}
	if sk.N.BitLen() < MinGateKeyBits {
		return nil, ErrKeyTooSmall
	}
	return sk, nil
}

// ParsePublicKey parses a PEM encoded RSA public key in PKIX or PKCS#1 form.
func ParsePublicKey(bts []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(bts)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	var pk *rsa.PublicKey
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		var ok bool
		if pk, ok = key.(*rsa.PublicKey); !ok {
			return nil, ErrNotRSAKey
		}
	} else if pk, err = x509.ParsePKCS1PublicKey(block.Bytes); err != nil {
		return nil, errors.WrapPrefix(err, "envelope: failed to parse public key", 0)
	}
	if pk.N.BitLen() < MinGateKeyBits {
		return nil, ErrKeyTooSmall
	}
	return pk, nil
}

func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "envelope: could not read private key", 0)
	}
	return ParsePrivateKey(bts)
}

func LoadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "envelope: could not read public key", 0)
	}
	return ParsePublicKey(bts)
}

// MarshalPemPrivateKey encodes sk as a PKCS#8 PEM block.
func MarshalPemPrivateKey(sk *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPemPublicKey encodes pk as a PKIX PEM block.
func MarshalPemPublicKey(pk *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pk)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// WritePrivateKeyFile writes sk to path with mode 0600, refusing to overwrite an existing file.
func WritePrivateKeyFile(path string, sk *rsa.PrivateKey) error {
	bts, err := MarshalPemPrivateKey(sk)
	if err != nil {
		return err
	}
	return writeNew(path, bts, 0600)
}

// WritePublicKeyFile writes pk to path with mode 0644, refusing to overwrite an existing file.
func WritePublicKeyFile(path string, pk *rsa.PublicKey) error {
	bts, err := MarshalPemPublicKey(pk)
	if err != nil {
		return err
	}
	return writeNew(path, bts, 0644)
}

func writeNew(path string, bts []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err = f.Write(bts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
