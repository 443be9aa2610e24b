package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, path, remote string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(0.001, 2)(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "/files/", "10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, hit(h, "/files/", "10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "/files/", "10.0.0.1:3333"))

	// other clients and health probes are unaffected
	assert.Equal(t, http.StatusOK, hit(h, "/files/", "10.0.0.2:1111"))
	assert.Equal(t, http.StatusOK, hit(h, "/health", "10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, hit(h, "/metrics", "10.0.0.1:1111"))
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, 0)(okHandler())
	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "/files/", "10.0.0.1:1"))
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	assert.Len(t, rl.visitors, 1)

	now = now.Add(11 * time.Minute)
	rl.Allow("b")
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "b")
}
