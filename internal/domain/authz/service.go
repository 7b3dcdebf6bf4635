package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/astro-web3/oauthgate/internal/domain/apikey"
	"github.com/astro-web3/oauthgate/internal/domain/product"
	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/astro-web3/oauthgate/internal/infra/keyexchange"
	"github.com/astro-web3/oauthgate/pkg/logger"
)

const (
	// HeaderClaims carries the base64 JSON of the public claims upstream.
	HeaderClaims       = "x-authorization-claims"
	headerCacheControl = "Cache-Control"

	DefaultAuthorizationHeader = "authorization"
	DefaultAPIKeyHeader        = "x-api-key"

	redacted = "[REDACTED]"
)

//nolint:gochecknoglobals // compiled once
var bearerPattern = regexp.MustCompile(`Bearer (.+)`)

var errNoVerifier = errors.New("no token verification key configured")

// Options selects the gate's operating mode. The zero value accepts either
// credential and denies anything missing or invalid.
type Options struct {
	AuthorizationHeader     string
	APIKeyHeader            string
	KeepAuthorizationHeader bool

	AllowOAuthOnly            bool
	AllowAPIKeyOnly           bool
	ProductOnly               bool
	AllowNoAuthorization      bool
	AllowInvalidAuthorization bool
}

func (o Options) withDefaults() Options {
	if o.AuthorizationHeader == "" {
		o.AuthorizationHeader = DefaultAuthorizationHeader
	}
	if o.APIKeyHeader == "" {
		o.APIKeyHeader = DefaultAPIKeyHeader
	}
	return o
}

type Verifier interface {
	Verify(ctx context.Context, raw string) (token.Claims, error)
}

type Exchanger interface {
	Exchange(ctx context.Context, apiKey string) (string, error)
}

// Gate decides whether a request may proceed to its upstream.
type Gate struct {
	opts      Options
	verifier  Verifier
	rules     *product.Rules
	keys      *apikey.Cache
	exchanger Exchanger
	stats     Stats
}

func NewGate(
	opts Options,
	verifier Verifier,
	rules *product.Rules,
	keys *apikey.Cache,
	exchanger Exchanger,
	stats Stats,
) *Gate {
	if stats == nil {
		stats = nopStats{}
	}
	return &Gate{
		opts:      opts.withDefaults(),
		verifier:  verifier,
		rules:     rules,
		keys:      keys,
		exchanger: exchanger,
		stats:     stats,
	}
}

func (g *Gate) Options() Options {
	return g.opts
}

// Evaluate runs the request through the gate. It blocks only while an API
// key is exchanged. Any inbound claims header is dropped: only the gate sets
// it, and only for verified claims.
func (g *Gate) Evaluate(ctx context.Context, req *Request) *Decision {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Del(HeaderClaims)
	d := &Decision{Credential: CredentialNone}
	authValue := req.Header.Get(g.opts.AuthorizationHeader)

	switch {
	case g.opts.AllowOAuthOnly:
		if authValue == "" {
			if g.opts.AllowNoAuthorization {
				return g.proceedAnonymous(ctx, d, "no authorization header")
			}
			return g.deny(ctx, req, d, CodeMissingAuthorization, "Missing Authorization header")
		}
		if _, ok := bearerToken(authValue); !ok {
			d.Credential = CredentialBearer
			if g.opts.AllowInvalidAuthorization {
				g.stripAuthorization(req, d)
				return g.proceedAnonymous(ctx, d, "invalid authorization header tolerated")
			}
			return g.deny(ctx, req, d, CodeInvalidRequest, "Invalid Authorization header")
		}
	case g.opts.AllowAPIKeyOnly:
		if req.Header.Get(g.opts.APIKeyHeader) == "" {
			if g.opts.AllowNoAuthorization {
				return g.proceedAnonymous(ctx, d, "no api key header")
			}
			return g.deny(ctx, req, d, CodeInvalidAuth, "Missing API Key header")
		}
	}

	if authValue == "" || g.opts.AllowAPIKeyOnly {
		if apiKey := g.apiKey(req); apiKey != "" {
			d.Credential = CredentialAPIKey
			return g.exchangeAPIKey(ctx, req, d, apiKey)
		}
		if g.opts.AllowNoAuthorization {
			return g.proceedAnonymous(ctx, d, "no credentials")
		}
		return g.deny(ctx, req, d, CodeMissingAuthorization, "Missing Authorization header")
	}

	d.Credential = CredentialBearer
	raw, ok := bearerToken(authValue)
	if !ok {
		if !g.opts.AllowInvalidAuthorization {
			return g.deny(ctx, req, d, CodeInvalidRequest, "Invalid Authorization header")
		}
		// malformed headers are forwarded as they came in
		return g.proceedAnonymous(ctx, d, "invalid authorization header tolerated")
	}

	g.stripAuthorization(req, d)
	return g.verify(ctx, req, d, raw, "")
}

// apiKey reads the key from its header, then from the query parameter of the
// same name.
func (g *Gate) apiKey(req *Request) string {
	if key := req.Header.Get(g.opts.APIKeyHeader); key != "" {
		return key
	}
	if req.Query != nil {
		return req.Query.Get(g.opts.APIKeyHeader)
	}
	return ""
}

func (g *Gate) exchangeAPIKey(ctx context.Context, req *Request, d *Decision, apiKey string) *Decision {
	if g.keys == nil {
		return g.deny(ctx, req, d, CodeInvalidRequest, keyexchange.ErrNotConfigured.Error())
	}

	res, err := g.keys.Resolve(ctx, apiKey, req.Header.Get(headerCacheControl), g.exchange)
	if err != nil {
		code, msg := exchangeFailure(err)
		return g.deny(ctx, req, d, code, msg)
	}

	if res.Cached {
		return g.authorize(ctx, req, d, res.Claims, "")
	}
	return g.verify(ctx, req, d, res.Token, apiKey)
}

func (g *Gate) exchange(ctx context.Context, apiKey string) (string, error) {
	if g.exchanger == nil {
		return "", keyexchange.ErrNotConfigured
	}
	return g.exchanger.Exchange(ctx, apiKey)
}

// exchangeFailure maps an exchange error onto its denial.
func exchangeFailure(err error) (ErrorCode, string) {
	var statusErr *keyexchange.StatusError
	switch {
	case errors.Is(err, keyexchange.ErrNotConfigured):
		return CodeInvalidRequest, keyexchange.ErrNotConfigured.Error()
	case errors.As(err, &statusErr):
		return CodeAccessDenied, statusErr.Message()
	default:
		return CodeGatewayTimeout, err.Error()
	}
}

// verify checks raw and authorizes its claims. apiKey is set when raw came
// from a fresh exchange and the claims should be cached.
func (g *Gate) verify(ctx context.Context, req *Request, d *Decision, raw, apiKey string) *Decision {
	var (
		claims token.Claims
		err    error
	)
	if g.verifier == nil {
		err = errNoVerifier
	} else {
		claims, err = g.verifier.Verify(ctx, raw)
	}
	if err != nil {
		if g.opts.AllowInvalidAuthorization {
			logger.WarnContext(ctx, "ignoring invalid token", slog.String("error", err.Error()))
			return g.proceedAnonymous(ctx, d, "invalid token tolerated")
		}
		logger.DebugContext(ctx, "token verification failed", slog.String("error", err.Error()))
		return g.deny(ctx, req, d, CodeInvalidToken, "")
	}

	return g.authorize(ctx, req, d, claims, apiKey)
}

func (g *Gate) authorize(ctx context.Context, req *Request, d *Decision, claims token.Claims, apiKey string) *Decision {
	if !g.rules.IsAuthorized(claims, req.Proxy, req.Path, g.opts.ProductOnly) {
		return g.deny(ctx, req, d, CodeAccessDenied, "")
	}

	encoded, err := claims.Encode()
	if err != nil {
		return g.deny(ctx, req, d, CodeInvalidToken, err.Error())
	}
	req.Header.Set(HeaderClaims, encoded)

	if apiKey != "" {
		if err := g.keys.Store(ctx, apiKey, req.Header.Get(headerCacheControl), claims); err != nil {
			logger.WarnContext(ctx, "failed to cache api key claims", slog.String("error", err.Error()))
		}
	}

	d.Outcome = Proceed
	d.Claims = claims
	d.Authenticated = true
	return d
}

func (g *Gate) stripAuthorization(req *Request, d *Decision) {
	if g.opts.KeepAuthorizationHeader {
		return
	}
	req.Header.Del(g.opts.AuthorizationHeader)
	d.StrippedHeader = http.CanonicalHeaderKey(g.opts.AuthorizationHeader)
}

func (g *Gate) proceedAnonymous(ctx context.Context, d *Decision, reason string) *Decision {
	logger.InfoContext(ctx, "proceeding without authentication",
		slog.String("reason", reason),
		slog.String("credential", string(d.Credential)),
	)
	d.Outcome = Proceed
	return d
}

func (g *Gate) deny(ctx context.Context, req *Request, d *Decision, code ErrorCode, message string) *Decision {
	d.Outcome = Deny
	d.Code = code
	d.Message = message

	logger.ErrorContext(ctx, "auth failure",
		slog.Int("status", code.Status()),
		slog.String("code", string(code)),
		slog.String("message", message),
		slog.Any("headers", g.redactHeaders(req.Header)),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)
	g.stats.IncrementStatusCount(code.Status())
	return d
}

func (g *Gate) redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		switch {
		case strings.EqualFold(name, g.opts.AuthorizationHeader),
			strings.EqualFold(name, g.opts.APIKeyHeader),
			strings.EqualFold(name, "Cookie"):
			out[name] = redacted
		default:
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

// bearerToken extracts the token from a "Bearer <token>" header value.
func bearerToken(value string) (string, bool) {
	m := bearerPattern.FindStringSubmatch(value)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
