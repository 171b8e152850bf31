package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozen(t *testing.T, rps float64, burst int) (*Limiter, *time.Time) {
	t.Helper()
	l := New(rps, burst)
	require.NotNil(t, l)
	t.Cleanup(l.Close)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestAllowPerClient(t *testing.T) {
	l, now := frozen(t, 1, 2)

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("10.0.0.1")
		assert.True(t, ok)
	}
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	*now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "bucket refills")
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	assert.Nil(t, New(0, 10))
	assert.Nil(t, New(1, 0))

	ok, _ := l.Allow("anyone")
	assert.True(t, ok)
	l.Close()
}

func limitedEngine(t *testing.T, l *Limiter, trusted []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	require.NoError(t, r.SetTrustedProxies(trusted))
	r.GET("/check", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func send(r *gin.Engine, remote, forwarded string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware(t *testing.T) {
	l, _ := frozen(t, 1, 1)
	r := limitedEngine(t, l, nil)

	assert.Equal(t, http.StatusNoContent, send(r, "192.0.2.1:1234", "").Code)

	rr := send(r, "192.0.2.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rr.Body.String())

	assert.Equal(t, http.StatusNoContent, send(r, "192.0.2.2:1234", "").Code, "other peers keep their own bucket")
}

func TestMiddlewareIgnoresSpoofedForwardingHeaders(t *testing.T) {
	l, _ := frozen(t, 1, 1)
	r := limitedEngine(t, l, nil)

	assert.Equal(t, http.StatusNoContent, send(r, "192.0.2.1:1234", "203.0.113.1").Code)
	for i := 2; i < 20; i++ {
		rr := send(r, "192.0.2.1:1234", fmt.Sprintf("203.0.113.%d", i))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code, "rotated X-Forwarded-For must not mint fresh buckets")
	}

	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Real-IP", "198.51.100.7")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "X-Real-IP is not trusted either")
}

func TestMiddlewareHonoursTrustedProxy(t *testing.T) {
	l, _ := frozen(t, 1, 1)
	r := limitedEngine(t, l, []string{"10.0.0.0/8"})

	assert.Equal(t, http.StatusNoContent, send(r, "10.0.0.5:443", "203.0.113.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, "10.0.0.6:443", "203.0.113.9").Code, "same client behind another proxy")
	assert.Equal(t, http.StatusNoContent, send(r, "10.0.0.5:443", "203.0.113.10").Code, "distinct clients behind the proxy")

	assert.Equal(t, http.StatusNoContent, send(r, "192.0.2.50:1234", "203.0.113.11").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, "192.0.2.50:1234", "203.0.113.12").Code, "untrusted peer is keyed on its own address")
}

func TestBucketCountIsBounded(t *testing.T) {
	l, _ := frozen(t, 1, 1)

	for i := 0; i < MaxClients+50; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}
	assert.LessOrEqual(t, l.clients.Len(), MaxClients)
}
