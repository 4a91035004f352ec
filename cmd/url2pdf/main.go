package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/urfave/cli/v3"

	"url2pdf/internal/config"
	"url2pdf/internal/domain"
	"url2pdf/internal/http/server"
	"url2pdf/internal/infra/cache"
	"url2pdf/internal/infra/chrome"
	"url2pdf/internal/infra/logging"
	"url2pdf/internal/infra/postgres"
	"url2pdf/internal/infra/ratelimit"
	"url2pdf/internal/tokens"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	return rootCmd().Run(ctx, args)
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:  "url2pdf",
		Usage: "Render web pages to PDF over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to the YAML config file. A missing file means defaults.",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API (default)",
				Action: serveAction,
			},
			renderCmd(),
		},
	}
}

// loadConfig reads the config named by --config and sets up logging.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.LoadFrom(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	return cfg, nil
}

// newSource picks the browser source: a shared pool when chrome_pool_size is
// set, one browser per render otherwise. The pool is nil in the latter case.
func newSource(cfg config.RenderConfig) (chrome.Source, *chrome.Pool, error) {
	if cfg.ChromePoolSize <= 0 {
		return chrome.NewLauncher(cfg), nil, nil
	}
	pool, err := chrome.NewPool(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, pool, err := newSource(cfg.Render)
	if err != nil {
		return err
	}
	deps := server.Deps{
		Config:   cfg,
		Renderer: chrome.NewRenderer(source),
	}
	if pool != nil {
		defer pool.Close()
		deps.Pool = pool
	}

	if cfg.Cache.PDFCacheEnabled {
		rdb := cache.NewClient(cfg.Cache.RedisHost, cfg.Cache.PDFCacheDB)
		defer rdb.Close()
		deps.Cache = cache.New(rdb, cfg.Cache.PDFCacheTTL)
	}

	if cfg.Auth.Enabled() {
		dsn, err := postgres.BuildDSN(cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		db := postgres.NewDB()
		defer db.Close()

		deps.Tokens = tokens.NewCache()
		tokens.NewReloader(deps.Tokens, postgres.NewTokenRepository(db, dsn), cfg.Auth.TokenReloadInterval).Start(ctx)
	}

	rl := cfg.RateLimiter
	if (deps.Tokens != nil && rl.EnableTokenLimiter) || (rl.EnableUserLimiter && rl.UserLimit > 0) {
		deps.LimiterStore = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
	}

	app, err := server.New(deps)
	if err != nil {
		return err
	}

	logging.Info("Starting server", "addr", cfg.Server.Host+cfg.Server.Port, "chrome_pool_size", cfg.Render.ChromePoolSize)
	idleConnsClosed := make(chan struct{})
	return startServer(ctx, app, cfg, idleConnsClosed)
}

// startServer starts the Fiber app and blocks until a shutdown signal, ctx
// cancellation or a listen error.
func startServer(ctx context.Context, app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) error {
	listenErr := make(chan error, 1)
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			listenErr <- err
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)

	var err error
	select {
	case <-sigint:
		logging.Warn("Shutdown signal received, closing server...")
	case <-ctx.Done():
		logging.Warn("Context done, closing server...")
	case err = <-listenErr:
		logging.Error("Server error", "error", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		logging.Error("Server forced to shutdown", "error", shutdownErr)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
	return err
}

func renderCmd() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render one URL to a PDF file without starting the server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Required: true, Usage: "Page to render"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "webpage.pdf", Usage: "Output file"},
			&cli.StringFlag{Name: "scale", Usage: "Scale in percent (10-200)"},
			&cli.StringFlag{Name: "viewport", Usage: `Viewport as JSON, e.g. {"width":1280,"height":800}`},
			&cli.StringFlag{Name: "margin-top", Usage: "Top margin, e.g. 10px or 1cm"},
			&cli.StringFlag{Name: "margin-right", Usage: "Right margin"},
			&cli.StringFlag{Name: "margin-bottom", Usage: "Bottom margin"},
			&cli.StringFlag{Name: "margin-left", Usage: "Left margin"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			req := domain.ConversionRequest{
				URL:          cmd.String("url"),
				Viewport:     domain.FlexString(cmd.String("viewport")),
				MarginTop:    domain.FlexString(cmd.String("margin-top")),
				MarginRight:  domain.FlexString(cmd.String("margin-right")),
				MarginBottom: domain.FlexString(cmd.String("margin-bottom")),
				MarginLeft:   domain.FlexString(cmd.String("margin-left")),
				Scale:        domain.FlexString(cmd.String("scale")),
			}
			opts, err := req.Normalize(cfg.Render.DefaultViewport)
			if err != nil {
				return err
			}
			settings, err := cfg.Render.Settings()
			if err != nil {
				return err
			}

			source, pool, err := newSource(cfg.Render)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			pdf, err := chrome.NewRenderer(source).RenderPageToPDF(ctx, opts.RenderRequest(settings))
			if err != nil {
				return err
			}

			out := cmd.String("out")
			if err := os.WriteFile(out, pdf, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.Root().Writer, "wrote %d bytes to %s\n", len(pdf), out)
			return nil
		},
	}
}
