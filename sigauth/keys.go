package sigauth

import (
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/timelinesocial/timeline/models"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const minRSABits = 2048

// Supported signature algorithms, by the name they go by in flags and config.
var algorithms = map[string]jwa.SignatureAlgorithm{
	"ES256": jwa.ES256,
	"RS256": jwa.RS256,
	"EdDSA": jwa.EdDSA,
}

func ParseAlgorithm(name string) (jwa.SignatureAlgorithm, error) {
	alg, ok := algorithms[name]
	if !ok {
		return "", fmt.Errorf("unsupported signature algorithm: %q", name)
	}
	return alg, nil
}

// ParsePublicKey imports a PEM encoded SPKI public key and checks it can be used with alg.
func ParsePublicKey(raw string, alg jwa.SignatureAlgorithm) (jwk.Key, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(raw)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", models.ErrInvalidKeyFormat)
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: expected PUBLIC KEY block, got %s", models.ErrInvalidKeyFormat, block.Type)
	}
	key, err := jwk.ParseKey(pem.EncodeToMemory(block), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidKeyFormat, err)
	}
	if err := checkKeyAlg(key, alg); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidKeyFormat, err)
	}
	return key, nil
}

// ParsePrivateKey imports a PEM encoded private key (PKCS#8, SEC1 or PKCS#1).
func ParsePrivateKey(raw string, alg jwa.SignatureAlgorithm) (jwk.Key, error) {
	key, err := jwk.ParseKey([]byte(strings.TrimSpace(raw)), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	pub, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	if err := checkKeyAlg(pub, alg); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeyAlg(key jwk.Key, alg jwa.SignatureAlgorithm) error {
	switch alg {
	case jwa.ES256:
		k, ok := key.(jwk.ECDSAPublicKey)
		if !ok {
			return fmt.Errorf("%s requires an EC public key, got %s", alg, key.KeyType())
		}
		if k.Crv() != jwa.P256 {
			return fmt.Errorf("%s requires curve P-256, got %s", alg, k.Crv())
		}
	case jwa.RS256:
		k, ok := key.(jwk.RSAPublicKey)
		if !ok {
			return fmt.Errorf("%s requires an RSA public key, got %s", alg, key.KeyType())
		}
		if bits := len(k.N()) * 8; bits < minRSABits {
			return fmt.Errorf("RSA key too small: %d bits", bits)
		}
	case jwa.EdDSA:
		k, ok := key.(jwk.OKPPublicKey)
		if !ok {
			return fmt.Errorf("%s requires an OKP public key, got %s", alg, key.KeyType())
		}
		if k.Crv() != jwa.Ed25519 {
			return fmt.Errorf("%s requires curve Ed25519, got %s", alg, k.Crv())
		}
	default:
		return fmt.Errorf("unsupported signature algorithm: %s", alg)
	}
	return nil
}
