package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohs/mohs/internal/platform/db"
)

// RateLimitConfig holds rate limiting configuration. A zero
// RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops buckets that have been full and unused this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	rate       float64 // tokens per second
	lastRefill time.Time
}

func (b *tokenBucket) refill(now time.Time) {
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	b.lastRefill = now
}

// take consumes a token. When none is left it returns false and the whole
// seconds until one is available.
func (b *tokenBucket) take(now time.Time) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - b.tokens) / b.rate))
}

// bucketStore holds one bucket per tenant and client address.
type bucketStore struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastUsed  map[string]time.Time
	lastSweep time.Time
	cfg       RateLimitConfig
	now       func() time.Time
}

func newBucketStore(cfg RateLimitConfig, now func() time.Time) *bucketStore {
	return &bucketStore{
		buckets:   make(map[string]*tokenBucket),
		lastUsed:  make(map[string]time.Time),
		lastSweep: now(),
		cfg:       cfg,
		now:       now,
	}
}

func (s *bucketStore) get(key string) (*tokenBucket, time.Time) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.IdleTTL > 0 && now.Sub(s.lastSweep) >= s.cfg.IdleTTL {
		for k, used := range s.lastUsed {
			if now.Sub(used) >= s.cfg.IdleTTL {
				delete(s.buckets, k)
				delete(s.lastUsed, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:     float64(s.cfg.BurstSize),
			max:        float64(s.cfg.BurstSize),
			rate:       s.cfg.RequestsPerSecond,
			lastRefill: now,
		}
		s.buckets[key] = b
	}
	s.lastUsed[key] = now
	return b, now
}

func (s *bucketStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit limits requests per tenant and client address with a token
// bucket. It must run after tenant resolution.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(cfg, time.Now)
}

func rateLimit(cfg RateLimitConfig, now func() time.Time) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	store := newBucketStore(cfg, now)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := db.TenantFromContext(c.Request().Context()) + ":" + c.RealIP()

			bucket, at := store.get(key)
			ok, retryAfter := bucket.take(at)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
