package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	throttled := 0
	limiter.OnThrottle(func(string) { throttled++ })
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if throttled != 1 {
		t.Fatalf("expected throttle callback once, got %d", throttled)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	handler := limiter.Middleware(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.Header.Set("X-Forwarded-For", ip+", 192.168.0.1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s to have its own bucket, got %d", ip, res.Code)
		}
	}
}

func TestRateLimiterRefillsAndEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	if !limiter.Allow("a") {
		t.Fatalf("expected first token")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected empty bucket")
	}
	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("expected refill after one second")
	}

	now = now.Add(2 * visitorIdleTTL)
	limiter.Allow("b")
	limiter.mu.Lock()
	_, stale := limiter.visitors["a"]
	limiter.mu.Unlock()
	if stale {
		t.Fatalf("expected idle visitor to be evicted")
	}
}
