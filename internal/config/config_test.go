package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url2pdf/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CHROME_BIN", "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Port)
	assert.Equal(t, domain.Viewport{Width: 1280, Height: 800}, cfg.Render.DefaultViewport)
	assert.Equal(t, 120*time.Second, cfg.Render.Timeout())
	assert.Equal(t, "network-idle", cfg.Render.WaitCondition)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadFrom_Valid(t *testing.T) {
	t.Setenv("PORT", "")
	p := writeConfig(t, `server:
  host: "127.0.0.1"
  port: ":9000"
cache:
  pdf_cache_enabled: true
  pdf_cache_ttl: 2m
  redis_host: "localhost:6379"
auth:
  postgres_dsn: "postgres://x"
  token_reload_interval: 30s
rate_limiter:
  interval: 1h
  enable_user_limiter: true
  user_limit: 20
render:
  timeout_secs: 60
  settle_delay: 250ms
  default_viewport:
    width: 1024
    height: 768
  paper_sizes:
    TABLOID:
      width: 11
      height: 17
`)
	cfg, err := LoadFrom(p)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Host+cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Cache.PDFCacheTTL)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, 20, cfg.RateLimiter.UserLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Render.SettleDelay)
	assert.Equal(t, domain.Viewport{Width: 1024, Height: 768}, cfg.Render.DefaultViewport)
	// Paper sizes from the file are merged with the built-in ones.
	assert.Contains(t, cfg.Render.PaperSizes, "TABLOID")
	assert.Contains(t, cfg.Render.PaperSizes, "A4")
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "zero timeout", yml: "render:\n  timeout_secs: 0\n"},
		{name: "bad viewport", yml: "render:\n  default_viewport:\n    width: 0\n    height: 10\n"},
		{name: "unknown wait condition", yml: "render:\n  wait_condition: domready\n"},
		{name: "unknown paper", yml: "render:\n  default_paper: B0\n"},
		{name: "negative pool", yml: "render:\n  chrome_pool_size: -1\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "zero rate interval", yml: "rate_limiter:\n  interval: 0s\n"},
		{name: "auth without reload interval", yml: "auth:\n  postgres_dsn: x\n  token_reload_interval: 0s\n"},
		{name: "cache without redis", yml: "cache:\n  pdf_cache_enabled: true\n"},
		{name: "malformed yaml", yml: "server: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tc.yml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_UsesConfigPathAndEnvOverrides(t *testing.T) {
	p := writeConfig(t, "render:\n  timeout_secs: 5\n")
	t.Setenv("CONFIG_PATH", p)
	t.Setenv("PORT", "8081")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Server.Port)
	assert.Equal(t, "/usr/bin/chromium", cfg.Render.ChromePath)
	assert.Equal(t, 5, cfg.Render.TimeoutSecs)
}

func TestRenderConfig_Settings(t *testing.T) {
	r := Default().Render
	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, 8.27, s.PaperWidth)
	assert.Equal(t, 11.69, s.PaperHeight)
	assert.Equal(t, domain.WaitNetworkIdle, s.WaitCondition)
	assert.True(t, s.FullPage)

	r.DefaultPaper = "missing"
	_, err = r.Settings()
	assert.Error(t, err)
}
