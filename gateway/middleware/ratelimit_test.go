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
	limiter := NewRateLimiter(map[string]RateLimit{
		"offer": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("offer")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
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
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimiterSeparatesModules(t *testing.T) {
	limiter := NewRateLimiter(Uniform(RateLimit{RatePerSecond: 1, Burst: 1}, "offer", "dispute"), nil)
	offers := limiter.Middleware("offer")(okHandler())
	disputes := limiter.Middleware("dispute")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
	res := httptest.NewRecorder()
	offers.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected offer request to succeed, got %d", res.Code)
	}

	disputeReq := httptest.NewRequest(http.MethodGet, "/v1/disputes/0x01", nil)
	disputeRes := httptest.NewRecorder()
	disputes.ServeHTTP(disputeRes, disputeReq)
	if disputeRes.Code != http.StatusOK {
		t.Fatalf("expected dispute bucket to be independent, got %d", disputeRes.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(Uniform(RateLimit{RatePerSecond: 1, Burst: 1}, "offer"), nil)
	handler := limiter.Middleware("offer")(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
		req.Header.Set("X-Forwarded-For", ip+", 192.168.1.1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s to have its own bucket, got %d", ip, res.Code)
		}
	}
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(Uniform(RateLimit{RatePerSecond: 1, Burst: 1}, "offer"), nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("offer")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	now = now.Add(10 * time.Minute)
	other := httptest.NewRequest(http.MethodGet, "/v1/offers", nil)
	other.Header.Set("X-Real-IP", "10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if got := limiter.visitorCount(); got != 1 {
		t.Fatalf("expected idle visitor to be pruned, have %d", got)
	}
}

func TestRateLimiterPassesUnknownModule(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("rewards")(okHandler())
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/rewards/x", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("unlimited module rejected request %d: %d", i, res.Code)
		}
	}
}
