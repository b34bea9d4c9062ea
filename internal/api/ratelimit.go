package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

func ByIP(c *fiber.Ctx) string {
	return "ip:" + clientIP(c)
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "rate limit exceeded"})
}

type windowCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateLimiter is a fixed window counter shared by every instance.
type RedisRateLimiter struct {
	store   windowCounter
	prefix  string
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRedisRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, m *metrics.Metrics, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{store: r, prefix: prefix, limit: limit, window: window, metrics: m, log: log}
}

// Middleware lets requests through when redis is unreachable.
func (r *RedisRateLimiter) Middleware(key KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		redisKey := fmt.Sprintf("%s:%s", r.prefix, key(c))
		ctx, cancel := context.WithTimeout(c.UserContext(), 500*time.Millisecond)
		defer cancel()

		count, err := r.store.Incr(ctx, redisKey).Result()
		if err != nil {
			r.log.Warn("rate limiter unavailable", zap.String("key", redisKey), zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			if err := r.store.Expire(ctx, redisKey, r.window).Err(); err != nil {
				r.log.Warn("rate limiter expire", zap.String("key", redisKey), zap.Error(err))
			}
		}
		if count > int64(r.limit) {
			r.metrics.RateLimited.Inc()
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

// IPRateLimiter is the in-process fallback used without redis.
type IPRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewIPRateLimiter allows limit requests per window with a burst of the same
// size. Idle buckets are dropped until ctx is done.
func NewIPRateLimiter(ctx context.Context, limit int, window time.Duration, m *metrics.Metrics, log *zap.Logger) *IPRateLimiter {
	l := &IPRateLimiter{
		rps:     rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		metrics: m,
		log:     log,
	}
	go l.cleanupVisitors(ctx)
	return l
}

func (l *IPRateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	v, _ := l.visitors.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: now})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = now
	vi.mu.Unlock()
	return vi.limiter
}

func (l *IPRateLimiter) cleanupVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * time.Minute)
			l.visitors.Range(func(k, v any) bool {
				vi := v.(*visitor)
				vi.mu.Lock()
				stale := vi.lastSeen.Before(cutoff)
				vi.mu.Unlock()
				if stale {
					l.visitors.Delete(k)
				}
				return true
			})
		}
	}
}

func (l *IPRateLimiter) Middleware(key KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)
		if !l.getLimiter(k).Allow() {
			l.metrics.RateLimited.Inc()
			l.log.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", c.Path()))
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

func clientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
