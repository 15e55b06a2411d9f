package farcaster

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// CacheStore caches lookup responses as JSON strings with a fixed TTL.
// Get returns "" without an error on a miss.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

type MemCacheStore struct {
	Data *expirable.LRU[string, string]
}

var _ CacheStore = MemCacheStore{}

func NewMemCacheStore(capacity int, ttl time.Duration) MemCacheStore {
	return MemCacheStore{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	v, ok := s.Data.Get(name + "/" + key)
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.Data.Add(name+"/"+key, val)
	return nil
}

func (s MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.Data.Remove(name + "/" + key)
	return nil
}

// RedisCacheStore shares lookups between server instances
type RedisCacheStore struct {
	Client *redis.Client
	TTL    time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

// NewRedisCacheStore connects to redisURL and checks the connection
func NewRedisCacheStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisCacheStore{Client: rdb, TTL: ttl}, nil
}

func redisCacheKey(name, key string) string {
	return "modbot/cache/" + name + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	val, err := s.Client.Get(ctx, redisCacheKey(name, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Client.Set(ctx, redisCacheKey(name, key), val, s.TTL).Err()
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	return s.Client.Del(ctx, redisCacheKey(name, key)).Err()
}

// Close releases the connection pool
func (s *RedisCacheStore) Close() error {
	return s.Client.Close()
}
