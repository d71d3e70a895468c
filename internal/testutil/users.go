// Package testutil holds helpers shared by package tests: users with real
// key pairs, and signing.
package testutil

import (
	"sync"
	"testing"

	"github.com/timelinesocial/timeline/sigauth"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/require"
)

// TestUser is a handle with a key pair, able to sign request payloads.
type TestUser struct {
	Handle string
	Alg    jwa.SignatureAlgorithm
	Key    *sigauth.KeyPair
}

var (
	keyCacheLk sync.Mutex
	// RSA generation is slow; reuse keys across tests, by algorithm and handle
	keyCache = map[string]*sigauth.KeyPair{}
)

func NewTestUser(t testing.TB, handle string, alg jwa.SignatureAlgorithm) *TestUser {
	keyCacheLk.Lock()
	defer keyCacheLk.Unlock()

	ck := alg.String() + "/" + handle
	kp, ok := keyCache[ck]
	if !ok {
		var err error
		kp, err = sigauth.GenerateKey(alg)
		require.NoError(t, err)
		keyCache[ck] = kp
	}
	return &TestUser{Handle: handle, Alg: alg, Key: kp}
}

// Sign JSON-encodes body and returns the compact JWS over it.
func (u *TestUser) Sign(t testing.TB, body any) string {
	sig, err := sigauth.SignJSON(u.Key.PrivatePEM, u.Alg, body)
	require.NoError(t, err)
	return sig
}

// SignRaw signs payload bytes as-is, for malformed payload tests.
func (u *TestUser) SignRaw(t testing.TB, payload string) string {
	sig, err := sigauth.Sign(u.Key.PrivatePEM, u.Alg, []byte(payload))
	require.NoError(t, err)
	return sig
}
