package middleware

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"

	"url2pdf/internal/config"
)

type fakeTokenRater struct{ limit int }

func (f fakeTokenRater) RateLimit(token string) int { return f.limit }

func withKey(key string) fiber.Handler {
	// Pretend auth already happened
	return func(c *fiber.Ctx) error {
		c.Locals(APIKeyLocal, key)
		return c.Next()
	}
}

func doGet(t *testing.T, app *fiber.App, userAgent string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestTokenRateLimit_Enforced(t *testing.T) {
	app := fiber.New()
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}

	app.Use(withKey("abc"))
	app.Use(TokenRateLimit(cfg, fakeTokenRater{limit: 1}, memoryStorage.New(), NewLimiterCache()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	if resp := doGet(t, app, ""); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp := doGet(t, app, "")
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Too many requests") {
		t.Fatalf("expected JSON body to mention rate limit, got %q", string(body))
	}
}

func TestTokenRateLimit_DisabledOrUnlimited(t *testing.T) {
	tests := []struct {
		name  string
		cfg   RateLimitConfig
		limit int
	}{
		{name: "disabled", cfg: RateLimitConfig{RateInterval: time.Hour}, limit: 1},
		{name: "zero limit", cfg: RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}, limit: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(withKey("abc"))
			app.Use(TokenRateLimit(tc.cfg, fakeTokenRater{limit: tc.limit}, memoryStorage.New(), NewLimiterCache()))
			app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

			for i := 0; i < 3; i++ {
				if resp := doGet(t, app, ""); resp.StatusCode != fiber.StatusOK {
					t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
				}
			}
		})
	}
}

func TestLimiterCache_ReusesHandlerPerLimit(t *testing.T) {
	lc := NewLimiterCache()
	builds := 0
	build := func() fiber.Handler {
		builds++
		return func(c *fiber.Ctx) error { return nil }
	}
	lc.get(5, build)
	lc.get(5, build)
	lc.get(7, build)
	if builds != 2 {
		t.Fatalf("expected 2 builds, got %d", builds)
	}
}

func TestUserRateLimit_PublicLimitedButTokenBypasses(t *testing.T) {
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableUserLimiter: true, UserLimit: 1}

	app := fiber.New()
	app.Use(UserRateLimit(cfg, memoryStorage.New()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	if resp := doGet(t, app, "public-client"); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected first public request to pass, got %d", resp.StatusCode)
	}
	if resp := doGet(t, app, "public-client"); resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected second public request to be rate limited, got %d", resp.StatusCode)
	}
	if resp := doGet(t, app, "other-client"); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected a different client to pass, got %d", resp.StatusCode)
	}

	appWithToken := fiber.New()
	appWithToken.Use(withKey("abc"))
	appWithToken.Use(UserRateLimit(cfg, memoryStorage.New()))
	appWithToken.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	for i := 0; i < 3; i++ {
		if resp := doGet(t, appWithToken, "public-client"); resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected token-authenticated request to bypass user limiter, got %d", resp.StatusCode)
		}
	}
}

func TestRateLimitConfigFrom(t *testing.T) {
	got := RateLimitConfigFrom(config.RateLimiterConfig{
		Interval:           time.Minute,
		EnableTokenLimiter: true,
		EnableUserLimiter:  true,
		UserLimit:          9,
	})
	want := RateLimitConfig{RateInterval: time.Minute, EnableTokenRateLimiter: true, EnableUserLimiter: true, UserLimit: 9}
	if got != want {
		t.Fatalf("unexpected mapping: %+v", got)
	}
}
