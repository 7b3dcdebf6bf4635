package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	ClaimProductList     = "api_product_list"
	ClaimExpiry          = "exp"
	ClaimIssuedAt        = "iat"
	ClaimClientID        = "client_id"
	ClaimApplicationName = "application_name"
)

// privateClaims never leave the gateway.
//
//nolint:gochecknoglobals // fixed set
var privateClaims = map[string]struct{}{
	ClaimApplicationName: {},
	ClaimClientID:        {},
	ClaimProductList:     {},
	ClaimIssuedAt:        {},
	ClaimExpiry:          {},
}

// Claims is the decoded payload of a verified token.
type Claims map[string]any

// Products returns api_product_list. Anything other than a list of strings
// yields no products, which denies every request.
func (c Claims) Products() []string {
	switch v := c[ClaimProductList].(type) {
	case []string:
		return v
	case []any:
		products := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				products = append(products, s)
			}
		}
		return products
	default:
		return nil
	}
}

// Expiry returns exp in epoch seconds and whether it was present and numeric.
func (c Claims) Expiry() (float64, bool) {
	raw, ok := c[ClaimExpiry]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		n := json.Number(strings.TrimSpace(v))
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ExpiredAt reports whether the claims are no longer usable at now. Claims
// without exp never expire here.
func (c Claims) ExpiredAt(now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	return float64(now.UnixNano())/float64(time.Second) >= exp
}

// WithDefaultExpiry returns a copy whose exp is set to now+ttl, rounded to
// whole seconds, when the claims carry none.
func (c Claims) WithDefaultExpiry(now time.Time, ttl time.Duration) Claims {
	out := c.Clone()
	if _, ok := out.Expiry(); !ok {
		secs := float64(now.Add(ttl).UnixNano()) / float64(time.Second)
		out[ClaimExpiry] = int64(math.Round(secs))
	}
	return out
}

// Public returns the claims without the private fields.
func (c Claims) Public() Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		if _, private := privateClaims[k]; private {
			continue
		}
		out[k] = v
	}
	return out
}

// Encode renders the public claims as base64 JSON for the upstream header.
func (c Claims) Encode() (string, error) {
	b, err := json.Marshal(c.Public())
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c Claims) Clone() Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}
