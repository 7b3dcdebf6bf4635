package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AlgRS256 is the only accepted signing algorithm.
const AlgRS256 = "RS256"

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks compact signed tokens against a KeySource.
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	gracePeriod time.Duration
	now         func() time.Time
}

// WithGracePeriod tolerates clock skew on exp, nbf and iat.
func WithGracePeriod(d time.Duration) VerifierOption {
	return func(o *verifierOptions) {
		o.gracePeriod = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) {
		o.now = now
	}
}

func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	o := verifierOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{AlgRS256}),
			jwt.WithLeeway(o.gracePeriod),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(o.now),
			jwt.WithJSONNumber(),
		),
	}
}

// Verify returns the payload claims of a valid token. Any failure yields an
// error wrapping ErrInvalidToken and no claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if v.keys == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNoKeyMaterial)
	}

	claims := jwt.MapClaims{}
	t, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.keys.Key(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	return Claims(claims), nil
}
