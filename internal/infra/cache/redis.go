package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "oauthgate:apikey:"
	scanBatch = 500
	// minTTL keeps Redis from treating a zero or negative hint as "no expiry".
	minTTL = time.Second
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisKey hashes the API key so raw credentials never reach Redis.
func redisKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (r *RedisStore) Get(ctx context.Context, apiKey string) (token.Claims, bool, error) {
	val, err := r.client.Get(ctx, redisKey(apiKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from redis: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(val))
	dec.UseNumber()

	var claims token.Claims
	if err := dec.Decode(&claims); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached claims: %w", err)
	}

	return claims, true, nil
}

func (r *RedisStore) Set(ctx context.Context, apiKey string, claims token.Claims, ttl time.Duration) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal cached claims: %w", err)
	}

	if ttl < minTTL {
		ttl = minTTL
	}

	if err := r.client.Set(ctx, redisKey(apiKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, apiKey string) error {
	if err := r.client.Del(ctx, redisKey(apiKey)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := r.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func (r *RedisStore) Clear(ctx context.Context) (int, error) {
	var deleted int64
	err := r.scan(ctx, func(keys []string) error {
		n, err := r.client.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete from redis: %w", err)
		}
		deleted += n
		return nil
	})
	return int(deleted), err
}

func (r *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan redis: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
