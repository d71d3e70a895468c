package sigauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/timelinesocial/timeline/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Payload is implemented by every signed request body.
type Payload interface {
	Validate() error
}

// Signed body of a publish request.
type PublishPayload struct {
	Content string   `json:"content"`
	Topics  []string `json:"topics,omitempty"`
}

func (p *PublishPayload) Validate() error {
	return nil
}

// Signed body of like, unlike, repost and unrepost.
type PostRefPayload struct {
	ID string `json:"id"`
}

func (p *PostRefPayload) Validate() error {
	if p.ID == "" {
		return models.Violation("missing required field: id")
	}
	return nil
}

// Signed body of follow and unfollow.
type FollowPayload struct {
	To string `json:"to"`
}

func (p *FollowPayload) Validate() error {
	if p.To == "" {
		return models.Violation("missing required field: to")
	}
	return nil
}

// Verifier checks compact JWS signatures against registered public keys. The algorithm is fixed per deployment.
type Verifier struct {
	Alg jwa.SignatureAlgorithm

	// parsed keys, by PEM text
	keys *lru.Cache[string, jwk.Key]
}

func NewVerifier(alg jwa.SignatureAlgorithm) *Verifier {
	kc, _ := lru.New[string, jwk.Key](10_000)
	return &Verifier{
		Alg:  alg,
		keys: kc,
	}
}

func (v *Verifier) key(publicKey string) (jwk.Key, error) {
	if k, ok := v.keys.Get(publicKey); ok {
		return k, nil
	}
	k, err := ParsePublicKey(publicKey, v.Alg)
	if err != nil {
		return nil, err
	}
	v.keys.Add(publicKey, k)
	return k, nil
}

// Verify returns the payload carried inside signature, if and only if it was signed by the holder of publicKey.
func (v *Verifier) Verify(publicKey, signature string) ([]byte, error) {
	// compact serialization only; an empty middle segment is a detached payload the client would supply separately
	parts := strings.Split(signature, ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, models.ErrAuthMismatch
	}
	key, err := v.key(publicKey)
	if err != nil {
		return nil, models.ErrAuthMismatch
	}
	payload, err := jws.Verify([]byte(signature), jws.WithKey(v.Alg, key))
	if err != nil {
		return nil, models.ErrAuthMismatch
	}
	return payload, nil
}

// Authorize verifies signature against the user's key and decodes the signed payload as T.
func Authorize[T any, PT interface {
	*T
	Payload
}](v *Verifier, user *models.User, signature string) (*T, error) {
	payload, err := v.Verify(user.PublicKey, signature)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, models.ErrAuthMismatch
	}

	out := PT(new(T))
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, models.Violation("signed payload does not match request schema: %s", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return (*T)(out), nil
}

// Sign produces a compact JWS carrying payload, for clients and tests.
func Sign(privateKey string, alg jwa.SignatureAlgorithm, payload []byte) (string, error) {
	key, err := ParsePrivateKey(privateKey, alg)
	if err != nil {
		return "", err
	}
	sig, err := jws.Sign(payload, jws.WithKey(alg, key))
	if err != nil {
		return "", fmt.Errorf("signing payload: %w", err)
	}
	return string(sig), nil
}

// SignJSON marshals body and signs it.
func SignJSON(privateKey string, alg jwa.SignatureAlgorithm, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return Sign(privateKey, alg, payload)
}
