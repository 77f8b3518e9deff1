package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugh/voxpopulous/internal/api/dto"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more attempt is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time)
	Limit() int
}

// MemoryLimiter is a per-process sliding window limiter.
type MemoryLimiter struct {
	requests int
	window   time.Duration
	clients  map[string]*clientWindow
	mu       sync.Mutex
	stop     chan struct{}
}

type clientWindow struct {
	timestamps []time.Time
}

func NewMemoryLimiter(requests, windowSeconds int) *MemoryLimiter {
	if requests <= 0 {
		requests = 10
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	l := &MemoryLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		clients:  make(map[string]*clientWindow),
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *MemoryLimiter) Limit() int { return l.requests }

// Close stops the cleanup goroutine.
func (l *MemoryLimiter) Close() {
	close(l.stop)
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, c := range l.clients {
				if len(c.timestamps) == 0 || now.Sub(c.timestamps[len(c.timestamps)-1]) > l.window*2 {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &clientWindow{timestamps: make([]time.Time, 0, l.requests)}
		l.clients[key] = c
	}

	now := time.Now()
	windowStart := now.Add(-l.window)

	kept := c.timestamps[:0]
	for _, ts := range c.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	c.timestamps = kept

	if len(c.timestamps) >= l.requests {
		return false, 0, c.timestamps[0].Add(l.window)
	}

	c.timestamps = append(c.timestamps, now)
	return true, l.requests - len(c.timestamps), now.Add(l.window)
}

// RedisLimiter counts attempts in fixed windows shared by every API
// instance. When Redis is unreachable it falls back to the local limiter.
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	fallback *MemoryLimiter
	logger   *slog.Logger
}

func NewRedisLimiter(client *redis.Client, requests, windowSeconds int, logger *slog.Logger) *RedisLimiter {
	fallback := NewMemoryLimiter(requests, windowSeconds)
	return &RedisLimiter{
		client:   client,
		requests: fallback.requests,
		window:   fallback.window,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *RedisLimiter) Limit() int { return l.requests }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time) {
	now := time.Now()
	bucket := now.Truncate(l.window)
	reset := bucket.Add(l.window)
	redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(bucket.Unix(), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter falling back to memory", "error", err)
		return l.fallback.Allow(ctx, key)
	}

	count := int(incr.Val())
	if count > l.requests {
		return false, 0, reset
	}
	return true, l.requests - count, reset
}

// NewLimiter prefers Redis when a client is configured.
func NewLimiter(client *redis.Client, requests, windowSeconds int, logger *slog.Logger) Limiter {
	if client == nil {
		return NewMemoryLimiter(requests, windowSeconds)
	}
	return NewRedisLimiter(client, requests, windowSeconds, logger)
}

// RateLimit limits requests per client IP under the given scope, e.g. "login".
func RateLimit(limiter Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := limiter.Allow(r.Context(), scope+":"+clientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(reset).Seconds())+1, 10))
				writeError(w, http.StatusTooManyRequests, dto.CodeRateLimited, "Too many attempts, try again later", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
