package sigauth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeyPair holds a freshly generated key as PEM text: PKCS#8 private, SPKI public.
type KeyPair struct {
	PrivatePEM string
	PublicPEM  string
}

func GenerateKey(alg jwa.SignatureAlgorithm) (*KeyPair, error) {
	var priv crypto.Signer
	var err error
	switch alg {
	case jwa.ES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case jwa.RS256:
		priv, err = rsa.GenerateKey(rand.Reader, minRSABits)
	case jwa.EdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %s", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%s key generation failed: %w", alg, err)
	}

	key, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, err
	}
	pub, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	privPEM, err := jwk.EncodePEM(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	pubPEM, err := jwk.EncodePEM(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	return &KeyPair{
		PrivatePEM: string(privPEM),
		PublicPEM:  string(pubPEM),
	}, nil
}
