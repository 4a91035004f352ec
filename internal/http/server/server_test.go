package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url2pdf/internal/config"
	"url2pdf/internal/domain"
	"url2pdf/internal/tokens"
)

type stubRenderer struct{ calls int }

func (s *stubRenderer) RenderPageToPDF(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
	s.calls++
	return []byte("%PDF-stub"), nil
}

func minimalConfig() config.Config {
	cfg := config.Default()
	cfg.Render.TimeoutSecs = 1
	cfg.Render.SettleDelay = 0
	return cfg
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	app, err := New(Deps{Config: minimalConfig(), Renderer: &stubRenderer{}})
	require.NoError(t, err)

	resp, body := do(t, app, mustRequest(http.MethodGet, "/", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Welcome to URL to PDF converter API", body)

	resp, _ = do(t, app, mustRequest(http.MethodGet, "/ops/chrome/stats", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, mustRequest(http.MethodGet, "/ops/health", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, app, mustRequest(http.MethodGet, "/does-not-exist", ""))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "Not Found", payload["error"])
}

func TestNew_ConvertRoutes(t *testing.T) {
	r := &stubRenderer{}
	app, err := New(Deps{Config: minimalConfig(), Renderer: r})
	require.NoError(t, err)

	resp, body := do(t, app, mustRequest(http.MethodPost, "/api/convert", `{"url":"https://example.com"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"success":true`)

	resp, body = do(t, app, mustRequest(http.MethodGet, "/convert?url=https://example.com", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-stub", body)
	assert.Equal(t, 2, r.calls)
}

func TestNew_MetricsEndpoint(t *testing.T) {
	app, err := New(Deps{Config: minimalConfig(), Renderer: &stubRenderer{}})
	require.NoError(t, err)

	do(t, app, mustRequest(http.MethodGet, "/", ""))
	resp, body := do(t, app, mustRequest(http.MethodGet, "/ops/metrics", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "url2pdf_http_requests_total")
}

func TestNew_AuthAndTokenRateLimit(t *testing.T) {
	cfg := minimalConfig()
	cfg.RateLimiter.Interval = time.Hour
	cfg.RateLimiter.EnableTokenLimiter = true

	tc := tokens.NewCache()
	tc.Replace(map[string]tokens.Entry{"good": {RateLimit: 1}})

	app, err := New(Deps{Config: cfg, Renderer: &stubRenderer{}, Tokens: tc, LimiterStore: memoryStorage.New()})
	require.NoError(t, err)

	withKey := func(key string) *http.Request {
		req := mustRequest(http.MethodGet, "/convert?url=https://example.com", "")
		req.Header.Set("X-API-Key", key)
		return req
	}

	resp, _ := do(t, app, withKey("bad"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, withKey("good"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, app, withKey("good"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "Too many requests")

	// Anonymous requests are not subject to token limits.
	resp, _ = do(t, app, mustRequest(http.MethodGet, "/convert?url=https://example.com", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_TokenBypassesUserLimit(t *testing.T) {
	cfg := minimalConfig()
	cfg.RateLimiter.Interval = time.Hour
	cfg.RateLimiter.EnableTokenLimiter = true
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 2

	tc := tokens.NewCache()
	tc.Replace(map[string]tokens.Entry{"test-token": {RateLimit: 100}})

	// One store shared by both limiters, as in production.
	app, err := New(Deps{Config: cfg, Renderer: &stubRenderer{}, Tokens: tc, LimiterStore: memoryStorage.New()})
	require.NoError(t, err)

	makeReq := func(withToken bool) *http.Request {
		req := mustRequest(http.MethodGet, "/", "")
		req.Header.Set("User-Agent", "test-agent")
		if withToken {
			req.Header.Set("X-API-Key", "test-token")
		}
		return req
	}

	for i := 0; i < cfg.RateLimiter.UserLimit; i++ {
		resp, _ := do(t, app, makeReq(false))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := do(t, app, makeReq(false))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, app, makeReq(true))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "token requests must not hit the user limiter")
}

func TestNew_InvalidPaper(t *testing.T) {
	cfg := minimalConfig()
	cfg.Render.DefaultPaper = "B0"
	_, err := New(Deps{Config: cfg, Renderer: &stubRenderer{}})
	assert.Error(t, err)
}

func mustRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, r)
	if err != nil {
		panic(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
