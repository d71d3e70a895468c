package cliutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/timelinesocial/timeline/sigauth"
)

// Generates a key pair and saves it to disk as PEM: the private key at fname, the public key at fname+".pub".
func GenerateKeyToFile(fname string, alg jwa.SignatureAlgorithm) (*sigauth.KeyPair, error) {
	kp, err := sigauth.GenerateKey(alg)
	if err != nil {
		return nil, err
	}

	// ensure data directory exists; won't error if it does
	os.MkdirAll(filepath.Dir(fname), os.ModePerm)

	if err := os.WriteFile(fname, []byte(kp.PrivatePEM), 0600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(fname+".pub", []byte(kp.PublicPEM), 0644); err != nil {
		return nil, err
	}
	return kp, nil
}

// Loads a PEM private key from disk, checking it fits alg. Returns the PEM text.
func LoadKeyFromFile(fpath string, alg jwa.SignatureAlgorithm) (string, error) {
	kb, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}
	if _, err := sigauth.ParsePrivateKey(string(kb), alg); err != nil {
		return "", fmt.Errorf("%s: %w", fpath, err)
	}
	return string(kb), nil
}
