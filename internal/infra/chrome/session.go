package chrome

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"url2pdf/internal/config"
)

// Session is an isolated browser target used for exactly one render.
type Session struct {
	Ctx context.Context

	once    sync.Once
	release func()
	// gen is the pool browser generation the session was opened on.
	gen uint64
}

func newSession(ctx context.Context, release func()) *Session {
	return &Session{Ctx: ctx, release: release}
}

// close runs the release function once, no matter how often it is called.
func (s *Session) close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Source hands out browser sessions. Every acquired session must be released.
type Source interface {
	Acquire(ctx context.Context) (*Session, error)
	Release(s *Session, renderErr error)
}

// IsSessionInterrupted reports whether err means the browser session ended
// underneath the render (context cancellation or a lost target).
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isBrowserGone(err)
}

// isBrowserGone matches failures after which the browser process is not usable.
func isBrowserGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, chromedp.ErrInvalidContext) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "websocket", "connection reset", "broken pipe", "session closed", "browser closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func createProfileDir(cfg config.RenderConfig) (string, error) {
	base := cfg.UserDataDir
	if base == "" {
		base = os.TempDir()
	} else if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(base, "chromedata-*")
}

func allocatorOptions(cfg config.RenderConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}
