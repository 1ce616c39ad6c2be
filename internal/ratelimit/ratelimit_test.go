package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestLimiter(t *testing.T, rpm, burst int) (*Limiter, *time.Time) {
	t.Helper()
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst, CleanupInterval: time.Hour, IdleTimeout: time.Minute})
	t.Cleanup(l.Stop)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAllow(t *testing.T) {
	limiter, now := newTestLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow("test-ip") {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow("test-ip") {
		t.Error("Request after burst should be denied")
	}

	// 60/min replenishes one token per second.
	*now = now.Add(time.Second)

	if !limiter.Allow("test-ip") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	limiter, _ := newTestLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}
	if limiter.Allow("client-a") {
		t.Error("client-a should be rate limited")
	}
	if !limiter.Allow("client-b") {
		t.Error("client-b should have its own bucket")
	}
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	limiter, now := newTestLimiter(t, 60, 3)

	limiter.Allow("stale")
	*now = now.Add(2 * time.Minute)
	limiter.Allow("fresh")

	limiter.evictIdle()

	if got := limiter.Clients(); got != 1 {
		t.Fatalf("expected 1 tracked client after eviction, got %d", got)
	}
}

func TestLimiterStopIdempotent(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	l.Stop()
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newTestLimiter(t, 60, 2)

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "ok")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Expected Retry-After header, got %q", w.Header().Get("Retry-After"))
	}
}
