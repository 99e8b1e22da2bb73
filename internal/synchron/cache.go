package synchron

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache persists portal session cookies between runs so that a still
// valid session can skip the login round-trip.
type SessionCache interface {
	Load(ctx context.Context) ([]*http.Cookie, error)
	Save(ctx context.Context, cookies []*http.Cookie) error
}

const defaultSessionKey = "synchronsync:session"

type cachedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// RedisSessionCache stores the cookie set as JSON under a single key with a
// TTL matching the portal's session lifetime.
type RedisSessionCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSessionCache wraps an existing Redis client.
func NewRedisSessionCache(rdb *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionCache{rdb: rdb, key: defaultSessionKey, ttl: ttl}
}

func (c *RedisSessionCache) Load(ctx context.Context) ([]*http.Cookie, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached []cachedCookie
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(cached))
	for _, cc := range cached {
		cookies = append(cookies, &http.Cookie{Name: cc.Name, Value: cc.Value, Path: cc.Path})
	}
	return cookies, nil
}

func (c *RedisSessionCache) Save(ctx context.Context, cookies []*http.Cookie) error {
	cached := make([]cachedCookie, 0, len(cookies))
	for _, ck := range cookies {
		cached = append(cached, cachedCookie{Name: ck.Name, Value: ck.Value, Path: ck.Path})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key, data, c.ttl).Err()
}
