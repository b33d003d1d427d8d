package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohs/mohs/internal/platform/db"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func limitedHandler(cfg RateLimitConfig, clock *fakeClock) echo.HandlerFunc {
	return rateLimit(cfg, clock.now)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func limitedRequest(e *echo.Echo, h echo.HandlerFunc, tenant, ip string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/mohs/cases", nil)
	req.RemoteAddr = ip + ":5000"
	req = req.WithContext(db.WithTenant(req.Context(), tenant))
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		cfg         RateLimitConfig
		requests    int
		step        time.Duration
		wantAllowed int
	}{
		{"within burst", RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}, 5, 0, 5},
		{"burst exhausted", RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, 4, 0, 2},
		{"refills over time", RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, 3, time.Second, 3},
		{"partial refill", RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1}, 3, 250 * time.Millisecond, 2},
		{"disabled", RateLimitConfig{}, 50, 0, 50},
		{"zero burst allows one", RateLimitConfig{RequestsPerSecond: 1, BurstSize: 0}, 3, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			clock := &fakeClock{t: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
			h := limitedHandler(tt.cfg, clock)

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				_, err := limitedRequest(e, h, "acme", "10.0.0.1")
				if err == nil {
					allowed++
				}
				clock.t = clock.t.Add(tt.step)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("expected %d allowed, got %d", tt.wantAllowed, allowed)
			}
		})
	}
}

func TestRateLimit_RejectionHeaders(t *testing.T) {
	e := echo.New()
	clock := &fakeClock{t: time.Now()}
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 1}, clock)

	if _, err := limitedRequest(e, h, "acme", "10.0.0.1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	rec, err := limitedRequest(e, h, "acme", "10.0.0.1")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "0.5" {
		t.Errorf("expected X-RateLimit-Limit 0.5, got %q", got)
	}
}

func TestRateLimit_SeparatesTenantsAndClients(t *testing.T) {
	e := echo.New()
	clock := &fakeClock{t: time.Now()}
	h := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, clock)

	for _, k := range []struct{ tenant, ip string }{
		{"acme", "10.0.0.1"},
		{"globex", "10.0.0.1"},
		{"acme", "10.0.0.2"},
	} {
		if _, err := limitedRequest(e, h, k.tenant, k.ip); err != nil {
			t.Errorf("%s/%s: expected own bucket, got %v", k.tenant, k.ip, err)
		}
	}
	if _, err := limitedRequest(e, h, "acme", "10.0.0.1"); err == nil {
		t.Error("expected acme/10.0.0.1 to be limited")
	}
}

func TestBucketStore_DropsIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newBucketStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute}, clock.now)

	store.get("acme:10.0.0.1")
	store.get("acme:10.0.0.2")
	clock.t = clock.t.Add(2 * time.Minute)
	store.get("acme:10.0.0.3")

	if n := store.size(); n != 1 {
		t.Errorf("expected idle buckets dropped, %d remain", n)
	}
}
