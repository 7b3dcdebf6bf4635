package authz

import (
	"context"

	"github.com/astro-web3/oauthgate/internal/domain/apikey"
	"github.com/astro-web3/oauthgate/internal/domain/authz"
	"github.com/astro-web3/oauthgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Service interface {
	Evaluate(ctx context.Context, req *authz.Request) *authz.Decision
	CacheSize(ctx context.Context) (int, error)
	ClearCache(ctx context.Context) (int, error)
}

type service struct {
	gate  *authz.Gate
	cache *apikey.Cache
}

func NewService(gate *authz.Gate, cache *apikey.Cache) Service {
	return &service{
		gate:  gate,
		cache: cache,
	}
}

func (s *service) Evaluate(ctx context.Context, req *authz.Request) *authz.Decision {
	ctx, span := tracer.Start(ctx, "app.authz.Evaluate")
	defer span.End()

	span.SetAttributes(
		attribute.String("proxy.name", req.Proxy.Name),
		attribute.String("http.method", req.Method),
	)

	decision := s.gate.Evaluate(ctx, req)

	span.SetAttributes(
		attribute.String("authz.outcome", decision.Outcome.String()),
		attribute.String("authz.credential", string(decision.Credential)),
		attribute.Bool("authz.authenticated", decision.Authenticated),
	)
	if !decision.Allowed() {
		span.SetAttributes(attribute.String("authz.code", string(decision.Code)))
		span.SetStatus(codes.Error, string(decision.Code))
	}

	return decision
}

func (s *service) CacheSize(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "app.authz.CacheSize")
	defer span.End()

	n, err := s.cache.Size(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return n, nil
}

func (s *service) ClearCache(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "app.authz.ClearCache")
	defer span.End()

	n, err := s.cache.Clear(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("apikey_cache.deleted", n))
	return n, nil
}
