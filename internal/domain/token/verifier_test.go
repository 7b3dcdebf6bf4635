package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:gochecknoglobals // fixed clock for deterministic expiry checks
var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sign(t *testing.T, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func jwkSet(t *testing.T, keys map[string]*rsa.PrivateKey) string {
	t.Helper()
	set := jwk.NewSet()
	for kid, k := range keys {
		pub, err := jwk.FromRaw(&k.PublicKey)
		require.NoError(t, err)
		require.NoError(t, pub.Set(jwk.KeyIDKey, kid))
		require.NoError(t, set.AddKey(pub))
	}
	b, err := json.Marshal(set)
	require.NoError(t, err)
	return string(b)
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"client_id":        "client-1",
		"application_name": "app",
		"api_product_list": []string{"p1"},
		"iat":              now.Add(-time.Minute).Unix(),
		"exp":              now.Add(time.Hour).Unix(),
		"scope":            "read",
	}
}

func TestVerifier_PEM_ValidToken(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, key))
	require.NoError(t, err)

	v := token.NewVerifier(src, token.WithClock(clock))
	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, key, "", baseClaims()))

	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, claims.Products())
	assert.Equal(t, "client-1", claims.String(token.ClaimClientID))
}

func TestVerifier_ExpiredBeyondGracePeriod(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, key))
	require.NoError(t, err)

	c := baseClaims()
	c["exp"] = now.Add(-30 * time.Second).Unix()
	raw := sign(t, jwt.SigningMethodRS256, key, "", c)

	_, err = token.NewVerifier(src, token.WithClock(clock)).Verify(context.Background(), raw)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = token.NewVerifier(src, token.WithClock(clock), token.WithGracePeriod(10*time.Second)).
		Verify(context.Background(), raw)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	claims, err := token.NewVerifier(src, token.WithClock(clock), token.WithGracePeriod(time.Minute)).
		Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.NotNil(t, claims)
}

func TestVerifier_NoExpiryIsAccepted(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, key))
	require.NoError(t, err)

	c := baseClaims()
	delete(c, "exp")

	claims, err := token.NewVerifier(src, token.WithClock(clock)).
		Verify(context.Background(), sign(t, jwt.SigningMethodRS256, key, "", c))
	require.NoError(t, err)
	_, ok := claims.Expiry()
	assert.False(t, ok)
}

func TestVerifier_RejectsAlgorithmsOutsideAllowList(t *testing.T) {
	key := generateKey(t)
	pemKey := publicPEM(t, key)
	src, err := token.NewPEMSource(pemKey)
	require.NoError(t, err)
	v := token.NewVerifier(src, token.WithClock(clock))

	tests := []struct {
		name string
		raw  string
	}{
		{"RS512 with the right key", sign(t, jwt.SigningMethodRS512, key, "", baseClaims())},
		{"PS256 with the right key", sign(t, jwt.SigningMethodPS256, key, "", baseClaims())},
		{"HS256 keyed with the public key", sign(t, jwt.SigningMethodHS256, []byte(pemKey), "", baseClaims())},
		{"none", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, "", baseClaims())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.raw)
			require.ErrorIs(t, err, token.ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestVerifier_Malformed(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, key))
	require.NoError(t, err)
	v := token.NewVerifier(src, token.WithClock(clock))

	for _, raw := range []string{"", "abc", "a.b.c", "a.b"} {
		_, err := v.Verify(context.Background(), raw)
		require.ErrorIs(t, err, token.ErrInvalidToken, raw)
	}
}

func TestVerifier_WrongKey(t *testing.T) {
	signer := generateKey(t)
	other := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, other))
	require.NoError(t, err)

	_, err = token.NewVerifier(src, token.WithClock(clock)).
		Verify(context.Background(), sign(t, jwt.SigningMethodRS256, signer, "", baseClaims()))
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestVerifier_FutureIssuedAt(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewPEMSource(publicPEM(t, key))
	require.NoError(t, err)

	c := baseClaims()
	c["iat"] = now.Add(5 * time.Minute).Unix()
	raw := sign(t, jwt.SigningMethodRS256, key, "", c)

	_, err = token.NewVerifier(src, token.WithClock(clock)).Verify(context.Background(), raw)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = token.NewVerifier(src, token.WithClock(clock), token.WithGracePeriod(10*time.Minute)).
		Verify(context.Background(), raw)
	require.NoError(t, err)
}

func TestVerifier_JWKSelectsKeyByOwnKid(t *testing.T) {
	k1 := generateKey(t)
	k2 := generateKey(t)
	src, err := token.NewJWKSource(jwkSet(t, map[string]*rsa.PrivateKey{"k1": k1, "k2": k2}))
	require.NoError(t, err)
	v := token.NewVerifier(src, token.WithClock(clock))

	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k2, "k2", baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, claims.Products())

	claims, err = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k1, "k1", baseClaims()))
	require.NoError(t, err)
	assert.NotNil(t, claims)

	// signed by k1 but claiming k2
	_, err = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k1, "k2", baseClaims()))
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestVerifier_JWKUnknownOrMissingKid(t *testing.T) {
	key := generateKey(t)
	src, err := token.NewJWKSource(jwkSet(t, map[string]*rsa.PrivateKey{"k1": key}))
	require.NoError(t, err)
	v := token.NewVerifier(src, token.WithClock(clock))

	_, err = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, key, "nope", baseClaims()))
	require.ErrorIs(t, err, token.ErrInvalidToken)
	require.ErrorIs(t, err, token.ErrUnknownKeyID)

	_, err = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, key, "", baseClaims()))
	require.ErrorIs(t, err, token.ErrNoKeyID)
}

func TestNewKeySource(t *testing.T) {
	key := generateKey(t)

	src, err := token.NewKeySource(jwkSet(t, map[string]*rsa.PrivateKey{"k1": key}), publicPEM(t, key))
	require.NoError(t, err)
	assert.IsType(t, &token.JWKSource{}, src)

	src, err = token.NewKeySource("", publicPEM(t, key))
	require.NoError(t, err)
	assert.IsType(t, &token.PEMSource{}, src)

	_, err = token.NewKeySource("", "")
	require.ErrorIs(t, err, token.ErrNoKeyMaterial)

	_, err = token.NewKeySource("", "not a pem")
	require.Error(t, err)
}
