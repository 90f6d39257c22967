package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// CounterStore tracks request counts per key within a fixed window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, retryAfter time.Duration, err error)
}

type RateLimiter struct {
	limit  int
	window time.Duration
	store  CounterStore
}

func NewRateLimiter(limit int, window time.Duration, store CounterStore) *RateLimiter {
	if store == nil {
		store = NewMemoryCounter()
	}

	return &RateLimiter{
		limit:  limit,
		window: window,
		store:  store,
	}
}

// Middleware returns a gin.HandlerFunc that enforces rate limit for a derived key

func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		count, retryAfter, err := rl.store.Incr(c.Request.Context(), key, rl.window)

		if err != nil {
			// fail open: a broken limiter must not take the API down
			c.Next()
			return
		}

		if count > rl.limit {
			secs := int(retryAfter.Seconds())
			if secs < 0 {
				secs = 0
			}

			c.Header("Retry-After", strconv.Itoa(secs))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		c.Next()
	}
}

// helper functions

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// For authenticated endpoints: rate limit by userID if available

func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok && id != "" {
		return "user:" + id
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}

// MemoryCounter is the single-instance store.

type MemoryCounter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{clients: make(map[string]*clientBucket)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (count int, retryAfter time.Duration, err error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.clients[key]

	if !ok || now.After(b.windowEnd) {
		m.clients[key] = &clientBucket{count: 1, windowEnd: now.Add(window)}
		return 1, window, nil
	}

	b.count++
	return b.count, time.Until(b.windowEnd), nil
}

// RedisCounter shares buckets across API instances.

type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: "taskhub:ratelimit:"}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (count int, retryAfter time.Duration, err error) {
	full := r.prefix + key

	n, err := r.rdb.Incr(ctx, full).Result()
	if err != nil {
		return 0, 0, err
	}

	if n == 1 {
		// first hit in the window sets the expiry
		if err := r.rdb.Expire(ctx, full, window).Err(); err != nil {
			return 0, 0, err
		}
		return int(n), window, nil
	}

	ttl, err := r.rdb.TTL(ctx, full).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	return int(n), ttl, nil
}
