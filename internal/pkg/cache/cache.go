package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arsound/arsound/internal/pkg/env"
	"github.com/arsound/arsound/internal/pkg/logger"
)

var (
	client *redis.Client
	mu     sync.RWMutex
	ctx    = context.Background()
)

// Options returns the connection options derived from CACHE_* variables.
func Options() *redis.Options {
	db, _ := strconv.Atoi(env.GetEnv("CACHE_DB", "0"))
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       db,
	}
}

// SetupCache initializes the connection to the Redis server
func SetupCache() {
	c := redis.NewClient(Options())

	pong, err := c.Ping(ctx).Result()
	if err != nil {
		logger.Get().Warn("could not connect to redis", "addr", c.Options().Addr, "error", err)
	} else {
		logger.Get().Info("connected to redis", "addr", c.Options().Addr, "reply", pong)
	}

	SetClient(c)
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	mu.RLock()
	c := client
	mu.RUnlock()
	if c == nil {
		SetupCache()
		mu.RLock()
		c = client
		mu.RUnlock()
	}
	return c
}

// SetClient replaces the shared client. Tests point it at an isolated DB.
func SetClient(c *redis.Client) {
	mu.Lock()
	client = c
	mu.Unlock()
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// GetInt retrieves an integer value from the cache by key
func GetInt(key string) (int, error) {
	return GetClient().Get(ctx, key).Int()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// Ping reports whether the server answers.
func Ping(c context.Context) error {
	return GetClient().Ping(c).Err()
}
