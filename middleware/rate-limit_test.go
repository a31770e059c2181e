package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neatchat/neatchat/ratelimit"
)

// stubStore is an in-process sliding-window log, enough to drive the gateway
// through the middleware without Redis.
type stubStore struct {
	mu      sync.Mutex
	entries map[string][]stubEntry
	seq     int
}

type stubEntry struct {
	at     time.Time
	member string
}

func newStubStore() *stubStore {
	return &stubStore{entries: map[string][]stubEntry{}}
}

func (s *stubStore) Record(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.entries[key][:0]
	for _, e := range s.entries[key] {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.seq++
	member := fmt.Sprintf("m-%d", s.seq)
	kept = append(kept, stubEntry{at: now, member: member})
	s.entries[key] = kept
	return int64(len(kept)), kept[0].at, member, nil
}

func (s *stubStore) Forget(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[key][:0]
	for _, e := range s.entries[key] {
		if e.member != member {
			kept = append(kept, e)
		}
	}
	s.entries[key] = kept
	return nil
}

func limitedRouter(gw *ratelimit.Gateway) *gin.Engine {
	router := gin.New()
	router.Use(Auth())
	router.GET("/crud", CrudRateLimit(gw), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/admin", AdminRateLimit(gw), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimitHeadersAndExhaustion(t *testing.T) {
	setTestSecret(t)
	gw := ratelimit.NewGateway(newStubStore())
	router := limitedRouter(gw)

	// anonymous crud quota is 30 per minute
	var last *httptest.ResponseRecorder
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest(http.MethodGet, "/crud", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
		require.Equal(t, http.StatusOK, last.Code, "request %d", i+1)
	}
	assert.Equal(t, "30", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("X-RateLimit-Reset"))

	req := httptest.NewRequest(http.MethodGet, "/crud", nil)
	req.RemoteAddr = "198.51.100.7:1000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitPoolsAreIndependentPerIdentity(t *testing.T) {
	setTestSecret(t)
	gw := ratelimit.NewGateway(newStubStore())
	router := limitedRouter(gw)

	for i := 0; i < 31; i++ {
		req := httptest.NewRequest(http.MethodGet, "/crud", nil)
		req.RemoteAddr = "198.51.100.8:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	// a different caller still has its full quota
	req := httptest.NewRequest(http.MethodGet, "/crud", nil)
	req.RemoteAddr = "198.51.100.9:1000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitAdminClassClosedToAnonymous(t *testing.T) {
	setTestSecret(t)
	gw := ratelimit.NewGateway(newStubStore())
	router := limitedRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitEnterpriseAdminBypass(t *testing.T) {
	setTestSecret(t)
	store := newStubStore()
	gw := ratelimit.NewGateway(store)
	router := limitedRouter(gw)

	token, err := IssueAccessToken(1, "enterprise", true, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/crud", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "bypassed requests carry no limit headers")
	}
	assert.Empty(t, store.entries, "bypassed requests never touch the store")
}

func TestRateLimitDistinctUsersDoNotShareQuota(t *testing.T) {
	setTestSecret(t)
	gw := ratelimit.NewGateway(newStubStore())
	router := limitedRouter(gw)

	tokenA, err := IssueAccessToken(100, "free", false, time.Hour)
	require.NoError(t, err)
	tokenB, err := IssueAccessToken(200, "free", false, time.Hour)
	require.NoError(t, err)

	// free crud quota is 120 per minute; a handful of requests from A must
	// not show up in B's remaining count
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/crud", nil)
		req.Header.Set("Authorization", "Bearer "+tokenA)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/crud", nil)
	req.Header.Set("Authorization", "Bearer "+tokenB)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "119", w.Header().Get("X-RateLimit-Remaining"))
}
