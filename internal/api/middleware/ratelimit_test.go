package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/ratelimit"
	"github.com/phrazzld/stockroom/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bypassPaths = []string{"/health", "/auth/login", "/auth/guest-login", "/docs", "/ws/"}

type staticKeys map[string]bool

func (k staticKeys) VerifyAPIKey(key string) bool { return k[key] }

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, []ratelimit.Tier, time.Time) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("connection refused")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimited(t *testing.T, store ratelimit.CounterStore, tiers ...ratelimit.Tier) http.Handler {
	t.Helper()
	limiter, err := ratelimit.New(store, tiers,
		ratelimit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	resolver := ratelimit.NewResolver(staticKeys{"sk_live_operator": true}, nil)
	return RateLimit(limiter, resolver, bypassPaths)(okHandler())
}

func guestRequest(path, addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitRejectsOverflow(t *testing.T) {
	h := newLimited(t, ratelimit.NewMemoryStore(),
		ratelimit.Tier{Name: "burst", Limit: 3, Window: time.Minute},
		ratelimit.Tier{Name: "hourly", Limit: 100, Window: time.Hour})

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, guestRequest("/tasks", "203.0.113.9:4000"))
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		assert.Equal(t, "3", rr.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, "burst", rr.Header().Get(HeaderRateLimitTier))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, guestRequest("/tasks", "203.0.113.9:4001"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", rr.Header().Get(HeaderRateLimitRemaining))

	var body shared.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Rate limit exceeded for tier burst", body.Error)
	assert.Equal(t, "burst", body.Tier)
	assert.Equal(t, 3, body.Limit)
	assert.Equal(t, 60, body.RetryAfterSeconds)

	// A different source address has its own budget.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, guestRequest("/tasks", "198.51.100.7:4000"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitRemainingCountsDown(t *testing.T) {
	h := newLimited(t, ratelimit.NewMemoryStore(), ratelimit.Tier{Name: "minute", Limit: 5, Window: time.Minute})

	for _, want := range []string{"4", "3", "2"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, guestRequest("/tasks", "203.0.113.9:1"))
		assert.Equal(t, want, rr.Header().Get(HeaderRateLimitRemaining))
	}
}

func TestRateLimitExemptIdentity(t *testing.T) {
	h := newLimited(t, ratelimit.NewMemoryStore(), ratelimit.Tier{Name: "minute", Limit: 2, Window: time.Minute})

	for i := 0; i < 20; i++ {
		req := guestRequest("/tasks", "203.0.113.9:1")
		req.Header.Set("X-API-Key", "sk_live_operator")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get(HeaderRateLimitLimit))
	}

	// The exempt traffic did not consume the guest budget of the address.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, guestRequest("/tasks", "203.0.113.9:1"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitInvalidKeyCountsAsGuest(t *testing.T) {
	h := newLimited(t, ratelimit.NewMemoryStore(), ratelimit.Tier{Name: "minute", Limit: 1, Window: time.Minute})

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := guestRequest("/tasks", "203.0.113.9:1")
		req.Header.Set("X-API-Key", "forged")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, "request %d", i+1)
	}
}

func TestRateLimitBypassPaths(t *testing.T) {
	h := newLimited(t, ratelimit.NewMemoryStore(), ratelimit.Tier{Name: "minute", Limit: 1, Window: time.Minute})

	for _, path := range []string{"/health", "/auth/guest-login", "/docs", "/ws/tasks", "/health", "/ws/tasks"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, guestRequest(path, "203.0.113.9:1"))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Empty(t, rr.Header().Get(HeaderRateLimitLimit), path)
	}

	// Exact entries do not match as prefixes.
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, guestRequest("/healthz", "203.0.113.9:1"))
		assert.Equal(t, want, rr.Code, "request %d", i+1)
	}
}

func TestRateLimitFailsClosed(t *testing.T) {
	h := newLimited(t, brokenStore{}, ratelimit.Tier{Name: "minute", Limit: 10, Window: time.Minute})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, guestRequest("/tasks", "203.0.113.9:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")

	// Exempt callers never reach the store.
	req := guestRequest("/tasks", "203.0.113.9:1")
	req.Header.Set("X-API-Key", "sk_live_operator")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitRejectionLoggedAtWarn(t *testing.T) {
	log, captured := testutils.NewTestLogger()
	h := TraceMiddleware(log)(newLimited(t, ratelimit.NewMemoryStore(),
		ratelimit.Tier{Name: "minute", Limit: 1, Window: time.Minute}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), guestRequest("/tasks", "203.0.113.9:1"))
	}

	entries := captured.Find("API error response")
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "guest:203.0.113.9", entries[0]["caller_key"])
	assert.Equal(t, "minute", entries[0]["tier"])
	assert.NotEmpty(t, entries[0]["trace_id"])
}
