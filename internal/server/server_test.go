package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/config"
	"github.com/abduss/otagate/internal/filestore"
	"github.com/abduss/otagate/internal/gate"
	"github.com/abduss/otagate/internal/grant"
	"github.com/abduss/otagate/internal/issuer"
	"github.com/abduss/otagate/internal/metadata"
	"github.com/abduss/otagate/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bundle = []byte("(function(){ /* bundle 2.0.0 */ })();\n")

type harness struct {
	api   *gin.Engine
	cdn   *gin.Engine
	token string
	codec *grant.Codec
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "android"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "android", "bundle.js"), bundle, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "android", "other.js"), []byte("other"), 0o644))

	files, err := filestore.NewLocalStore(root, filestore.SHA256)
	require.NoError(t, err)

	sum := sha256.Sum256(bundle)
	meta := metadata.NewMemoryStore()
	require.NoError(t, meta.Put(metadata.UpdateMetadata{
		PlatformID:   "android",
		Version:      "2.0.0",
		ResourcePath: "android/bundle.js",
		ContentHash:  hex.EncodeToString(sum[:]),
	}))

	ring, err := grant.NewKeyring(1, map[uint32][]byte{1: bytes.Repeat([]byte{'s'}, grant.MinKeyLength)})
	require.NoError(t, err)
	codec := grant.NewCodec(ring)

	cfg := config.Config{
		Auth: config.AuthConfig{
			Mode:           config.AuthModeToken,
			TokenSecret:    "caller-secret",
			TokenAudience:  "otagate",
			CallerTokenTTL: time.Hour,
		},
		Metrics: config.MetricsConfig{PrometheusPath: "/metrics"},
	}
	authService := auth.NewService(nil, cfg.Auth)
	t.Cleanup(authService.Close)
	token, _, err := authService.IssueCallerToken("device-1", 0)
	require.NoError(t, err)

	limiter := ratelimit.New(1000, 1000)
	t.Cleanup(limiter.Close)

	api := NewAPIRouter(APIDependencies{
		Config:      cfg,
		AuthService: authService,
		Issuer:      issuer.NewService(meta, files, codec, 5*time.Minute, "https://cdn.example.com"),
		Limiter:     limiter,
	})
	cdn := NewCDNRouter(CDNDependencies{
		Config: cfg,
		Gate:   gate.NewHandler(gate.NewVerifier(codec, nil, 0), files),
	})

	return &harness{api: api, cdn: cdn, token: token, codec: codec}
}

func (h *harness) check(t *testing.T, installed string, withCredential bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	req.Header.Set(issuer.HeaderPlatform, "android")
	if installed != "" {
		req.Header.Set(issuer.HeaderAppVersion, installed)
	}
	if withCredential {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rr := httptest.NewRecorder()
	h.api.ServeHTTP(rr, req)
	return rr
}

func (h *harness) download(target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.cdn.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestUpdateThenDownload(t *testing.T) {
	h := newHarness(t)

	rr := h.check(t, "1.0.0", true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp issuer.UpdateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Update)
	assert.Equal(t, "2.0.0", resp.Version)
	require.NotEmpty(t, resp.DownloadToken)

	link, err := url.Parse(resp.DownloadURL)
	require.NoError(t, err)
	assert.Equal(t, "cdn.example.com", link.Host)

	rr = h.download(link.RequestURI())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, bundle, rr.Body.Bytes())

	sum := sha256.Sum256(rr.Body.Bytes())
	assert.Equal(t, resp.ContentHash, hex.EncodeToString(sum[:]))
	assert.Equal(t, "private, no-store", rr.Header().Get("Cache-Control"))

	again := h.download(link.RequestURI())
	assert.Equal(t, http.StatusOK, again.Code, "grants may be redeemed more than once")
}

func TestCheckUpToDate(t *testing.T) {
	h := newHarness(t)

	rr := h.check(t, "2.0.0", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"update":false}`, rr.Body.String())
}

func TestCheckWithoutCredential(t *testing.T) {
	h := newHarness(t)

	rr := h.check(t, "1.0.0", false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDownloadDenialsAreUniform(t *testing.T) {
	h := newHarness(t)

	otherToken, _, err := h.codec.Encode("android/other.js", "device-1", time.Minute)
	require.NoError(t, err)

	targets := []string{
		"/files/android/bundle.js",
		"/files/android/bundle.js?grant=" + url.QueryEscape(otherToken),
		"/files/android/bundle.js?grant=not-a-token",
	}

	var bodies []string
	for _, target := range targets {
		rr := h.download(target)
		assert.Equal(t, http.StatusForbidden, rr.Code, target)
		bodies = append(bodies, rr.Body.String())
	}
	for _, body := range bodies {
		assert.Equal(t, bodies[0], body)
	}
	assert.JSONEq(t, `{"error":"forbidden"}`, bodies[0])
}

func TestHealthRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	down := errors.New("connection refused")

	router := NewCDNRouter(CDNDependencies{Checks: []HealthCheck{
		{Name: "postgres", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return down }},
	}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "redis", body["component"])
	assert.Equal(t, "degraded", body["status"])
	assert.NotContains(t, body, "error")
	assert.NotContains(t, rr.Body.String(), "connection refused", "dependency errors stay in the logs")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.check(t, "1.0.0", true)

	rr := httptest.NewRecorder()
	h.api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "otagate_http_requests_total")
}

func TestAPIRouterIgnoresSpoofedForwardingHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	limiter := ratelimit.New(1, 1)
	t.Cleanup(limiter.Close)

	authService := auth.NewService(nil, config.AuthConfig{Mode: config.AuthModeToken, TokenSecret: "caller-secret"})
	t.Cleanup(authService.Close)
	api := NewAPIRouter(APIDependencies{
		AuthService: authService,
		Issuer:      issuer.NewService(metadata.NewMemoryStore(), nil, h.codec, time.Minute, ""),
		Limiter:     limiter,
	})

	codes := make([]int, 0, 5)
	for _, forwarded := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "198.51.100.1, 203.0.113.4", "10.1.1.1"} {
		req := httptest.NewRequest(http.MethodGet, "/check?platform=android", nil)
		req.RemoteAddr = "192.0.2.10:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		api.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	assert.NotEqual(t, http.StatusTooManyRequests, codes[0])
	for _, code := range codes[1:] {
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
}
