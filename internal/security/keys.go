package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidKey is returned when PEM content or the key type cannot be used for signing.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyMismatch is returned by LoadKeyPair when the public key does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// LoadKeyPair parses the configured signing key and verification key and checks
// they form a pair. Each argument is inline PEM or a path to a PEM file.
func LoadKeyPair(privateSrc, publicSrc string) (crypto.Signer, crypto.PublicKey, error) {
	signer, err := ParsePrivateKey(privateSrc)
	if err != nil {
		return nil, nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := ParsePublicKey(publicSrc)
	if err != nil {
		return nil, nil, fmt.Errorf("public key: %w", err)
	}
	if _, err := SigningMethod(pub); err != nil {
		return nil, nil, err
	}
	eq, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !eq.Equal(pub) {
		return nil, nil, ErrKeyMismatch
	}
	return signer, pub, nil
}

// ParsePrivateKey parses a PKCS#1, PKCS#8 or SEC 1 private key.
func ParsePrivateKey(src string) (crypto.Signer, error) {
	block, err := decodePEM(src)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if signer, ok := key.(crypto.Signer); ok {
			return signer, nil
		}
	}
	return nil, ErrInvalidKey
}

// ParsePublicKey parses a PKIX or PKCS#1 public key.
func ParsePublicKey(src string) (crypto.PublicKey, error) {
	block, err := decodePEM(src)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}
	return nil, ErrInvalidKey
}

// SigningMethod picks the JWT algorithm for a verification key: RS256 for RSA,
// ES256 for P-256 and EdDSA for Ed25519.
func SigningMethod(pub crypto.PublicKey) (jwt.SigningMethod, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return jwt.SigningMethodES256, nil
		}
	case ed25519.PublicKey:
		return jwt.SigningMethodEdDSA, nil
	}
	return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, pub)
}

// GenerateEphemeralKey returns a fresh ECDSA P-256 key pair. Tokens signed with it
// do not survive a restart; cmd/server uses it only outside production when no key is configured.
func GenerateEphemeralKey() (crypto.Signer, crypto.PublicKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return key, key.Public(), nil
}

// decodePEM reads src as inline PEM when it starts with a PEM header, otherwise
// as a file path. Env files often carry literal "\n" in inline PEM; those are expanded.
func decodePEM(src string) (*pem.Block, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrInvalidKey
	}
	var raw []byte
	if strings.HasPrefix(src, "-----BEGIN") {
		raw = []byte(strings.ReplaceAll(src, `\n`, "\n"))
	} else {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		raw = b
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}
