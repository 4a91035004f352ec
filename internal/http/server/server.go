package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"url2pdf/internal/config"
	"url2pdf/internal/domain"
	"url2pdf/internal/http/handlers"
	"url2pdf/internal/http/middleware"
	"url2pdf/internal/infra/logging"
	"url2pdf/internal/tokens"
)

// Deps are the collaborators of the HTTP server. Cache, Pool and Tokens are
// optional; leave them nil to disable the feature.
type Deps struct {
	Config       config.Config
	Renderer     domain.Renderer
	Cache        handlers.PDFCache
	Pool         handlers.PoolStats
	Tokens       *tokens.Cache
	LimiterStore fiber.Storage
}

// New builds the Fiber app with middleware and routes.
func New(deps Deps) (*fiber.App, error) {
	cfg := deps.Config

	svc, err := handlers.NewConvertService(cfg, deps.Renderer, deps.Cache, deps.Pool)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxBodyBytes,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg)

	if deps.Tokens != nil {
		app.Use(middleware.APIKey(deps.Tokens))
	}
	if deps.LimiterStore != nil {
		rl := middleware.RateLimitConfigFrom(cfg.RateLimiter)
		if deps.Tokens != nil {
			app.Use(middleware.TokenRateLimit(rl, deps.Tokens, deps.LimiterStore, middleware.NewLimiterCache()))
		}
		app.Use(middleware.UserRateLimit(rl, deps.LimiterStore))
	}

	app.Get("/", svc.HandleWelcome)
	app.Post("/api/convert", svc.HandleEnvelopeConversion)
	app.Get("/convert", svc.HandleBinaryConversion)

	ops := app.Group("/ops")
	ops.Get("/monitor", monitor.New())
	ops.Get("/chrome/stats", svc.HandleChromeStats)
	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	var de *domain.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	case errors.As(err, &de):
		code = de.StatusCode()
		msg = de.Message()
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
