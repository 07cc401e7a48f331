package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_RejectsAfterMaxHits(t *testing.T) {
	now := issuedAt
	limiter := NewRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, hit("198.51.100.7").Code)
	now = now.Add(10 * time.Second)
	assert.Equal(t, http.StatusOK, hit("198.51.100.7").Code)

	rec := hit("198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "50", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"too many attempts, try again later"}`, rec.Body.String())

	// other clients are unaffected
	assert.Equal(t, http.StatusOK, hit("198.51.100.8").Code)

	// the first hit leaves the window
	now = issuedAt.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, hit("198.51.100.7").Code)
}

func TestRateLimiter_Defaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	assert.Equal(t, 10, limiter.maxHits)
	assert.Equal(t, time.Minute, limiter.window)
}

func TestRateLimiter_EvictsStaleClients(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	limiter.maxMemory = 2

	limiter.allow("a", issuedAt)
	limiter.allow("b", issuedAt)
	later := issuedAt.Add(2 * time.Minute)
	limiter.allow("c", later)

	assert.Len(t, limiter.hitByIP, 1)
	assert.Contains(t, limiter.hitByIP, "c")
}

func TestRateLimiter_KeysOnHostNotPort(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	limiter.now = func() time.Time { return issuedAt }

	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/user/login", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("192.0.2.1:40001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("192.0.2.1:40002"))
	assert.Equal(t, http.StatusTooManyRequests, hit("192.0.2.1:40003"))
	assert.Equal(t, http.StatusOK, hit("192.0.2.2:40001"))
}
