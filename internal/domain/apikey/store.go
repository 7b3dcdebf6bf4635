package apikey

import (
	"context"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
)

// Store persists cache entries. Implementations never evict on their own
// schedule as far as the Cache is concerned: exp inside the claims is the
// only expiry source, ttl is a housekeeping hint.
type Store interface {
	Get(ctx context.Context, apiKey string) (token.Claims, bool, error)
	Set(ctx context.Context, apiKey string, claims token.Claims, ttl time.Duration) error
	Delete(ctx context.Context, apiKey string) error
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) (int, error)
}

// Event names a cache lookup outcome for metrics.
type Event string

const (
	EventHit     Event = "hit"
	EventMiss    Event = "miss"
	EventExpired Event = "expired"
	EventStore   Event = "store"
	EventSkip    Event = "skip"
)

type EventRecorder interface {
	RecordCacheEvent(Event)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheEvent(Event) {}
