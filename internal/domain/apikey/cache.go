package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/astro-web3/oauthgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies to exchanged tokens that carry no exp.
const DefaultTTL = 1800 * time.Second

// ErrEmptyKey is returned when Resolve is called without an API key.
var ErrEmptyKey = errors.New("empty api key")

// ExchangeFunc trades an API key for a signed token.
type ExchangeFunc func(ctx context.Context, apiKey string) (string, error)

// Resolution is the outcome of a cache lookup. Exactly one of Claims (hit)
// and Token (fresh exchange, still unverified) is set.
type Resolution struct {
	Claims token.Claims
	Token  string
	Cached bool
}

// Cache maps API keys to the claims of the token they were exchanged for.
type Cache struct {
	store  Store
	now    func() time.Time
	ttl    time.Duration
	events EventRecorder
	group  singleflight.Group
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithEventRecorder(r EventRecorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.events = r
		}
	}
}

func NewCache(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		ttl:    DefaultTTL,
		events: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NoCache reports whether a Cache-Control value forbids cache use.
func NoCache(cacheControl string) bool {
	return strings.Contains(strings.ToLower(cacheControl), "no-cache")
}

// Resolve returns cached claims for apiKey or exchanges it for a token.
// Exchange errors are returned unchanged and leave the cache untouched.
// Concurrent misses for the same key share one exchange, which outlives any
// single caller; each caller stops waiting when its own ctx is done. no-cache
// requests always run their own exchange.
func (c *Cache) Resolve(ctx context.Context, apiKey, cacheControl string, exchange ExchangeFunc) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "domain.apikey.Resolve")
	defer span.End()

	if apiKey == "" {
		return nil, ErrEmptyKey
	}

	if NoCache(cacheControl) {
		c.events.RecordCacheEvent(EventSkip)
		span.SetAttributes(attribute.Bool("apikey.cached", false))

		raw, err := exchange(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return &Resolution{Token: raw}, nil
	}

	if claims, ok := c.lookup(ctx, apiKey); ok {
		span.SetAttributes(attribute.Bool("apikey.cached", true))
		c.events.RecordCacheEvent(EventHit)
		return &Resolution{Claims: claims, Cached: true}, nil
	}

	c.events.RecordCacheEvent(EventMiss)
	span.SetAttributes(attribute.Bool("apikey.cached", false))

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(apiKey, func() (any, error) {
		return exchange(shared, apiKey)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.DebugContext(ctx, "api key exchange shared with a concurrent request")
		}
		return &Resolution{Token: res.Val.(string)}, nil
	}
}

// lookup treats store failures as a miss so a flaky backend degrades to
// exchanging on every request rather than denying.
func (c *Cache) lookup(ctx context.Context, apiKey string) (token.Claims, bool) {
	claims, ok, err := c.store.Get(ctx, apiKey)
	if err != nil {
		logger.WarnContext(ctx, "api key cache read failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if claims.ExpiredAt(c.now()) {
		c.events.RecordCacheEvent(EventExpired)
		if err := c.store.Delete(ctx, apiKey); err != nil {
			logger.WarnContext(ctx, "api key cache evict failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return claims, true
}

// Store records the verified and authorized claims for apiKey. exp defaults
// to now plus the configured TTL. Nothing is written for no-cache requests.
func (c *Cache) Store(ctx context.Context, apiKey, cacheControl string, claims token.Claims) error {
	if apiKey == "" || NoCache(cacheControl) {
		return nil
	}

	now := c.now()
	entry := claims.WithDefaultExpiry(now, c.ttl)

	exp, _ := entry.Expiry()
	ttl := time.Duration((exp - float64(now.UnixNano())/float64(time.Second)) * float64(time.Second))

	if err := c.store.Set(ctx, apiKey, entry, ttl); err != nil {
		return fmt.Errorf("store api key entry: %w", err)
	}
	c.events.RecordCacheEvent(EventStore)
	return nil
}

func (c *Cache) Size(ctx context.Context) (int, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("api key cache size: %w", err)
	}
	return n, nil
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("api key cache clear: %w", err)
	}
	logger.InfoContext(ctx, "api key cache cleared", slog.Int("deleted", n))
	return n, nil
}
