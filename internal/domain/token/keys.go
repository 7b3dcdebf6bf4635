package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	ErrNoKeyID       = errors.New("token header has no kid")
	ErrUnknownKeyID  = errors.New("no key in set matches kid")
	ErrNoKeyMaterial = errors.New("neither jwk_keys nor public_key is configured")
)

// KeySource resolves the verification key for a parsed (still unverified)
// token.
type KeySource interface {
	Key(ctx context.Context, t *jwt.Token) (*rsa.PublicKey, error)
}

// PEMSource is a single statically configured RSA public key.
type PEMSource struct {
	key *rsa.PublicKey
}

// NewPEMSource accepts a PKIX or PKCS1 public key, or a certificate.
func NewPEMSource(pemData string) (*PEMSource, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse public_key: %w", err)
	}
	return &PEMSource{key: key}, nil
}

func (s *PEMSource) Key(context.Context, *jwt.Token) (*rsa.PublicKey, error) {
	return s.key, nil
}

// JWKSource selects a key from a JWK set by the token's kid header, compared
// against each key's own kid.
type JWKSource struct {
	set jwk.Set
}

func NewJWKSource(jwkJSON string) (*JWKSource, error) {
	set, err := jwk.Parse([]byte(jwkJSON))
	if err != nil {
		return nil, fmt.Errorf("parse jwk_keys: %w", err)
	}
	return &JWKSource{set: set}, nil
}

func (s *JWKSource) Key(_ context.Context, t *jwt.Token) (*rsa.PublicKey, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrNoKeyID
	}

	key, ok := s.set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKeyID, kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("export jwk %q: %w", kid, err)
	}

	switch k := raw.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	default:
		return nil, fmt.Errorf("jwk %q is %T, want RSA", kid, raw)
	}
}

// NewKeySource prefers the JWK set over the static key, the same precedence
// the gateway config has always used.
func NewKeySource(jwkJSON, publicKeyPEM string) (KeySource, error) {
	switch {
	case jwkJSON != "":
		return NewJWKSource(jwkJSON)
	case publicKeyPEM != "":
		return NewPEMSource(publicKeyPEM)
	default:
		return nil, ErrNoKeyMaterial
	}
}
