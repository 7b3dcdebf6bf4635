package token_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_Products(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, token.Claims{"api_product_list": []any{"a", 1, "b"}}.Products())
	assert.Equal(t, []string{"a"}, token.Claims{"api_product_list": []string{"a"}}.Products())
	assert.Empty(t, token.Claims{"api_product_list": "a,b"}.Products())
	assert.Empty(t, token.Claims{}.Products())
}

func TestClaims_Expiry(t *testing.T) {
	for _, v := range []any{float64(10), int64(10), 10, json.Number("10"), "10"} {
		exp, ok := token.Claims{"exp": v}.Expiry()
		assert.True(t, ok, "%T", v)
		assert.InDelta(t, 10, exp, 0.0001)
	}

	_, ok := token.Claims{"exp": true}.Expiry()
	assert.False(t, ok)
	_, ok = token.Claims{"exp": nil}.Expiry()
	assert.False(t, ok)
}

func TestClaims_ExpiredAt(t *testing.T) {
	at := time.Unix(1000, 0)
	assert.False(t, token.Claims{"exp": 1001}.ExpiredAt(at))
	assert.True(t, token.Claims{"exp": 1000}.ExpiredAt(at))
	assert.True(t, token.Claims{"exp": 999}.ExpiredAt(at))
	assert.False(t, token.Claims{}.ExpiredAt(at))
}

func TestClaims_WithDefaultExpiry(t *testing.T) {
	at := time.Unix(1000, 400_000_000)

	c := token.Claims{"sub": "x"}
	out := c.WithDefaultExpiry(at, 30*time.Minute)
	exp, ok := out.Expiry()
	require.True(t, ok)
	assert.InDelta(t, 2800, exp, 0.0001)
	_, ok = c.Expiry()
	assert.False(t, ok, "original is not mutated")

	kept := token.Claims{"exp": 5}.WithDefaultExpiry(at, 30*time.Minute)
	exp, _ = kept.Expiry()
	assert.InDelta(t, 5, exp, 0.0001)
}

func TestClaims_EncodeStripsPrivateFields(t *testing.T) {
	c := token.Claims{
		"application_name": "app",
		"client_id":        "cid",
		"api_product_list": []string{"p1"},
		"iat":              1,
		"exp":              2,
		"scope":            "read",
		"developer_email":  "dev@example.com",
	}

	encoded, err := c.Encode()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]any{"scope": "read", "developer_email": "dev@example.com"}, got)
	assert.Len(t, c, 7)
}
