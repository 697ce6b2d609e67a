// Package ratelimit builds fiber limiters whose counters live in Redis, so
// every instance behind the load balancer shares the same budget.
package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/arsound/arsound/internal/pkg/cache"
	"github.com/arsound/arsound/internal/pkg/env"
)

// StorageDB keeps limiter keys apart from the cache and the job queue (DB 0).
const StorageDB = 1

// NewStorage creates Redis-backed limiter storage reusing the cache settings.
func NewStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: StorageDB,
		Reset:    false,
	})
}

// Config describes one limiter. Storage nil keeps counters in memory.
type Config struct {
	Max     int
	Window  time.Duration
	Prefix  string
	Storage fiber.Storage
}

// New returns a limiter keyed by prefix and client IP that answers 429 in
// the API error shape.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return cfg.Prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Demasiadas solicitudes, probá de nuevo en un momento",
			})
		},
	})
}
