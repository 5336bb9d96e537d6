package sftp

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// GenerateHostKey generates a private host key in PEM format.
// kind is "ed25519" (the default when empty), "ecdsa" or "rsa".
func GenerateHostKey(kind string) ([]byte, error) {
	var block *pem.Block

	switch strings.ToLower(kind) {
	case "", "ed25519":
		_, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("error generating EdDSA private key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("error marshaling EdDSA private key: %w", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	case "ecdsa":
		privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("error generating ECDSA private key: %w", err)
		}
		der, err := x509.MarshalECPrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("error marshaling ECDSA private key: %w", err)
		}
		block = &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}

	case "rsa":
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("error generating RSA private key: %w", err)
		}
		block = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}

	default:
		return nil, fmt.Errorf("unsupported host key type %q", kind)
	}

	return pem.EncodeToMemory(block), nil
}
