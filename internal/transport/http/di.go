package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	authzapp "github.com/astro-web3/oauthgate/internal/app/authz"
	"github.com/astro-web3/oauthgate/internal/config"
	"github.com/astro-web3/oauthgate/internal/domain/apikey"
	authzdomain "github.com/astro-web3/oauthgate/internal/domain/authz"
	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/astro-web3/oauthgate/internal/infra/cache"
	"github.com/astro-web3/oauthgate/internal/infra/keyexchange"
	"github.com/astro-web3/oauthgate/internal/infra/stats"
	grpctransport "github.com/astro-web3/oauthgate/internal/transport/grpc"
	httpclient "github.com/astro-web3/oauthgate/pkg/http"
	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/astro-web3/oauthgate/pkg/otel"
	"github.com/astro-web3/oauthgate/pkg/tracer"
)

type Server struct {
	httpServer *http.Server
	closers    []func() error
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "oauthgate"
)

func NewServer(cfg *config.Config) (*Server, error) {
	logger.Init(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    cfg.Observability.Format,
		AddSource: cfg.Observability.LogSource,
	})

	otelCfg := otel.DefaultConfig(serviceName)
	otelCfg.EndpointURL = cfg.Observability.TracingEndpointURL
	otelCfg.Enabled = cfg.Observability.TraceEnabled
	otelCfg.SampleRatio = cfg.Observability.TraceSampleRatio
	if err := tracer.Init(otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	srv := &Server{}
	sink := stats.NewPrometheus()

	store, err := srv.newStore(cfg)
	if err != nil {
		return nil, err
	}
	keyCache := apikey.NewCache(store,
		apikey.WithDefaultTTL(cfg.OAuth.APIKeyCacheTTL),
		apikey.WithEventRecorder(sink),
	)

	keys, err := token.NewKeySource(cfg.OAuth.JWKKeys, cfg.OAuth.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification keys: %w", err)
	}
	verifier := token.NewVerifier(keys, token.WithGracePeriod(cfg.OAuth.GraceDuration()))

	rules, err := config.LoadRules(cfg.OAuth.ProductsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load product rules: %w", err)
	}

	exchanger := keyexchange.NewClient(cfg.OAuth.VerifyAPIKeyURL, httpclient.Options{
		Timeout:            cfg.OAuth.Request.Timeout,
		Headers:            cfg.OAuth.Request.Headers,
		Proxy:              cfg.OAuth.Request.Proxy,
		InsecureSkipVerify: cfg.OAuth.Request.InsecureSkipVerify,
	})

	gate := authzdomain.NewGate(GateOptions(cfg.OAuth), verifier, rules, keyCache, exchanger, sink)
	appService := authzapp.NewService(gate, keyCache)

	handler := NewHandler(appService, ProxyHeadersFromConfig(cfg))
	adminPath, adminHandler := grpctransport.NewRouter(grpctransport.NewAdminHandler(appService))
	router := NewRouter(handler, cfg, sink.Handler(), Mount{Path: adminPath, Handler: adminHandler})

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return srv, nil
}

func (s *Server) newStore(cfg *config.Config) (apikey.Store, error) {
	if cfg.Cache.Backend != config.BackendRedis {
		return cache.NewMemoryStore(), nil
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	s.closers = append(s.closers, redisClient.Close)
	return cache.NewRedisStore(redisClient), nil
}

// GateOptions maps the oauth config section onto the gate options.
func GateOptions(o config.OAuth) authzdomain.Options {
	return authzdomain.Options{
		AuthorizationHeader:       o.AuthorizationHeader,
		APIKeyHeader:              o.APIKeyHeader,
		KeepAuthorizationHeader:   o.KeepAuthorizationHeader,
		AllowOAuthOnly:            o.AllowOAuthOnly,
		AllowAPIKeyOnly:           o.AllowAPIKeyOnly,
		ProductOnly:               o.ProductOnly,
		AllowNoAuthorization:      o.AllowNoAuthorization,
		AllowInvalidAuthorization: o.AllowInvalidAuthorization,
	}
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, c := range s.closers {
		err = errors.Join(err, c())
	}
	return err
}
