package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

const redisKeyPrefix = "event-board:geocode:"

// RedisCache stores geocoding results as JSON strings with a fixed TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a remote cache tier. A zero ttl keeps entries forever.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (domain.GeocodingResult, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GeocodingResult{}, false, nil
	}
	if err != nil {
		return domain.GeocodingResult{}, false, err
	}

	var result domain.GeocodingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.GeocodingResult{}, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return result, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, result domain.GeocodingResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.client.Set(ctx, redisKeyPrefix+key, raw, r.ttl).Err()
}
