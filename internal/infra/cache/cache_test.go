package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/apikey"
	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/astro-web3/oauthgate/internal/infra/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ apikey.Store = (*cache.MemoryStore)(nil)
	_ apikey.Store = (*cache.RedisStore)(nil)
)

func exerciseStore(t *testing.T, store apikey.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	claims := token.Claims{"client_id": "c1", "exp": json.Number("2000000000")}
	require.NoError(t, store.Set(ctx, "key-1", claims, time.Minute))
	require.NoError(t, store.Set(ctx, "key-2", token.Claims{"client_id": "c2"}, time.Minute))

	got, ok, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", got.String("client_id"))
	exp, ok := got.Expiry()
	require.True(t, ok)
	assert.InDelta(t, 2000000000, exp, 0.5)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Delete(ctx, "key-2"))
	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Set(ctx, "key-3", token.Claims{}, time.Minute))
	deleted, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, cache.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	in := token.Claims{"scope": "read"}
	require.NoError(t, store.Set(ctx, "k", in, 0))
	in["scope"] = "write"

	got, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "read", got.String("scope"))

	got["scope"] = "admin"
	again, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "read", again.String("scope"))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("OAUTHGATE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OAUTHGATE_TEST_REDIS_URL not set")
	}

	client, err := cache.NewRedisClient(url, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client)
	_, err = store.Clear(context.Background())
	require.NoError(t, err)

	exerciseStore(t, store)
}
