package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"url2pdf/internal/domain"
)

const defaultConfigPath = "config.yaml"

// PaperSize is a paper format in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Prefork bool   `yaml:"prefork"`
}

type LimitsConfig struct {
	MaxBodyBytes int `yaml:"max_body_bytes"`
	MaxPDFBytes  int `yaml:"max_pdf_bytes"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CacheConfig struct {
	PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
	PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
	RedisHost       string        `yaml:"redis_host"`
	RateLimitDB     int           `yaml:"redis_rate_db"`
	PDFCacheDB      int           `yaml:"redis_pdf_db"`
}

// PostgresConfig describes the token database when no DSN is given.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	PostgresDSN         string         `yaml:"postgres_dsn"`
	Postgres            PostgresConfig `yaml:"postgres"`
	TokenReloadInterval time.Duration  `yaml:"token_reload_interval"`
}

// Enabled reports whether API key authentication has a token database.
func (a AuthConfig) Enabled() bool {
	return a.PostgresDSN != "" || a.Postgres.Host != ""
}

type RateLimiterConfig struct {
	Interval           time.Duration `yaml:"interval"`
	EnableTokenLimiter bool          `yaml:"enable_token_limiter"`
	EnableUserLimiter  bool          `yaml:"enable_user_limiter"`
	UserLimit          int           `yaml:"user_limit"`
}

type RenderConfig struct {
	DefaultViewport domain.Viewport      `yaml:"default_viewport"`
	DefaultPaper    string               `yaml:"default_paper"`
	PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
	WaitCondition   string               `yaml:"wait_condition"`
	TimeoutSecs     int                  `yaml:"timeout_secs"`
	SettleDelay     time.Duration        `yaml:"settle_delay"`
	FullPage        bool                 `yaml:"full_page"`
	PrintBackground bool                 `yaml:"print_background"`
	ChromePath      string               `yaml:"chrome_path"`
	ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
	ChromePoolSize  int                  `yaml:"chrome_pool_size"`
	UserDataDir     string               `yaml:"user_data_dir"`
}

// Timeout is the navigation and render budget of a single conversion.
func (r RenderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// Settings resolves the configured paper and wait condition into renderer settings.
func (r RenderConfig) Settings() (domain.RenderSettings, error) {
	paper, ok := r.PaperSizes[strings.ToUpper(r.DefaultPaper)]
	if !ok {
		return domain.RenderSettings{}, fmt.Errorf("default paper %q not configured", r.DefaultPaper)
	}
	return domain.RenderSettings{
		WaitCondition:   domain.WaitCondition(r.WaitCondition),
		Timeout:         r.Timeout(),
		SettleDelay:     r.SettleDelay,
		PaperWidth:      paper.Width,
		PaperHeight:     paper.Height,
		FullPage:        r.FullPage,
		PrintBackground: r.PrintBackground,
	}, nil
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the full service configuration. It is loaded once at startup and
// passed explicitly to the components that need it.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Limits      LimitsConfig      `yaml:"limits"`
	Logger      LoggerConfig      `yaml:"logger"`
	Cache       CacheConfig       `yaml:"cache"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Render      RenderConfig      `yaml:"render"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = ":3000"
	cfg.Limits.MaxBodyBytes = 1024 * 1024
	cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7
	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.PDFCacheDB = 1
	cfg.Auth.TokenReloadInterval = time.Minute
	cfg.RateLimiter.Interval = time.Minute
	cfg.RateLimiter.EnableTokenLimiter = true
	cfg.Render = RenderConfig{
		DefaultViewport: domain.Viewport{Width: 1280, Height: 800},
		DefaultPaper:    "A4",
		PaperSizes: map[string]PaperSize{
			"A3":     {Width: 11.69, Height: 16.54},
			"A4":     {Width: 8.27, Height: 11.69},
			"A5":     {Width: 5.83, Height: 8.27},
			"LETTER": {Width: 8.5, Height: 11},
			"LEGAL":  {Width: 8.5, Height: 14},
		},
		WaitCondition:   string(domain.WaitNetworkIdle),
		TimeoutSecs:     120,
		SettleDelay:     5 * time.Second,
		FullPage:        true,
		PrintBackground: true,
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/ops/metrics"
	return cfg
}

// Load reads the file named by CONFIG_PATH, falling back to config.yaml.
func Load() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads a YAML file over the defaults, applies environment overrides
// and validates the result. A missing file leaves the defaults in place.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		c.Server.Port = port
	}
	// Allow common container env var to override chrome_path.
	if c.Render.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			c.Render.ChromePath = v
		}
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Limits.MaxPDFBytes <= 0 {
		errs = append(errs, errors.New("limits.max_pdf_bytes must be positive"))
	}
	if c.Limits.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("limits.max_body_bytes must not be negative"))
	}

	r := c.Render
	if r.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("render.timeout_secs must be positive"))
	}
	if r.SettleDelay < 0 {
		errs = append(errs, errors.New("render.settle_delay must not be negative"))
	}
	if r.DefaultViewport.Width <= 0 || r.DefaultViewport.Height <= 0 {
		errs = append(errs, errors.New("render.default_viewport must have positive width and height"))
	}
	if !domain.WaitCondition(r.WaitCondition).Valid() {
		errs = append(errs, fmt.Errorf("render.wait_condition %q is not supported", r.WaitCondition))
	}
	if _, ok := r.PaperSizes[strings.ToUpper(r.DefaultPaper)]; !ok {
		errs = append(errs, fmt.Errorf("render.default_paper %q not in paper_sizes", r.DefaultPaper))
	}
	if r.ChromePoolSize < 0 {
		errs = append(errs, errors.New("render.chrome_pool_size must not be negative"))
	}

	if c.RateLimiter.UserLimit < 0 {
		errs = append(errs, errors.New("rate_limiter.user_limit must not be negative"))
	}
	if (c.RateLimiter.EnableUserLimiter || c.RateLimiter.EnableTokenLimiter) && c.RateLimiter.Interval <= 0 {
		errs = append(errs, errors.New("rate_limiter.interval must be positive"))
	}
	if c.Auth.Enabled() && c.Auth.TokenReloadInterval <= 0 {
		errs = append(errs, errors.New("auth.token_reload_interval must be positive"))
	}
	if c.Cache.PDFCacheEnabled && c.Cache.RedisHost == "" {
		errs = append(errs, errors.New("cache.redis_host is required when pdf_cache_enabled"))
	}

	return errors.Join(errs...)
}
