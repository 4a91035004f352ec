package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"url2pdf/internal/config"
	"url2pdf/internal/infra/logging"
)

const msgTooManyRequests = "Too many requests"

// RateLimitConfig holds the limiter settings.
type RateLimitConfig struct {
	RateInterval           time.Duration
	EnableTokenRateLimiter bool
	EnableUserLimiter      bool
	UserLimit              int
}

// RateLimitConfigFrom maps the service configuration onto limiter settings.
func RateLimitConfigFrom(cfg config.RateLimiterConfig) RateLimitConfig {
	return RateLimitConfig{
		RateInterval:           cfg.Interval,
		EnableTokenRateLimiter: cfg.EnableTokenLimiter,
		EnableUserLimiter:      cfg.EnableUserLimiter,
		UserLimit:              cfg.UserLimit,
	}
}

// TokenRater returns the request limit of a token; 0 means unlimited.
type TokenRater interface {
	RateLimit(token string) int
}

// LimiterCache keeps one limiter handler per distinct limit value.
type LimiterCache struct {
	mu       sync.RWMutex
	handlers map[int]fiber.Handler
}

func NewLimiterCache() *LimiterCache {
	return &LimiterCache{handlers: make(map[int]fiber.Handler)}
}

func (lc *LimiterCache) get(limit int, build func() fiber.Handler) fiber.Handler {
	lc.mu.RLock()
	h, ok := lc.handlers[limit]
	lc.mu.RUnlock()
	if ok {
		return h
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if h, ok := lc.handlers[limit]; ok {
		return h
	}
	h = build()
	lc.handlers[limit] = h
	return h
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": msgTooManyRequests})
}

func apiKey(c *fiber.Ctx) string {
	token, _ := c.Locals(APIKeyLocal).(string)
	return token
}

// TokenRateLimit applies the per-token limit to authenticated requests.
func TokenRateLimit(cfg RateLimitConfig, rater TokenRater, store fiber.Storage, cache *LimiterCache) fiber.Handler {
	if !cfg.EnableTokenRateLimiter {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		token := apiKey(c)
		if token == "" {
			return c.Next()
		}
		limit := rater.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		h := cache.get(limit, func() fiber.Handler {
			return limiter.New(limiter.Config{
				Max:               limit,
				Expiration:        cfg.RateInterval,
				LimiterMiddleware: limiter.SlidingWindow{},
				Storage:           store,
				KeyGenerator:      apiKey,
				LimitReached: func(c *fiber.Ctx) error {
					rateLimitRejects.WithLabelValues("token").Inc()
					logging.Warn("Rate limit exceeded", "token", apiKey(c), "path", c.Path())
					return tooManyRequests(c)
				},
			})
		})
		return h(c)
	}
}

func userKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// UserRateLimit limits anonymous clients by IP and User-Agent. Requests
// authenticated with an API key skip it; their token limit applies instead.
func UserRateLimit(cfg RateLimitConfig, store fiber.Storage) fiber.Handler {
	if !cfg.EnableUserLimiter || cfg.UserLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.UserLimit,
		Expiration:        cfg.RateInterval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      userKey,
		LimitReached: func(c *fiber.Ctx) error {
			rateLimitRejects.WithLabelValues("user").Inc()
			logging.Warn("Rate limit exceeded", "user", userKey(c), "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		if apiKey(c) != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}
