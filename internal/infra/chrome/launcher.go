package chrome

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"

	"url2pdf/internal/config"
)

// Launcher starts a fresh headless Chrome process for every session. The
// process and its temporary profile directory go away on release.
type Launcher struct {
	cfg config.RenderConfig
}

func NewLauncher(cfg config.RenderConfig) *Launcher {
	return &Launcher{cfg: cfg}
}

func (l *Launcher) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profileDir, err := createProfileDir(l.cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(l.cfg, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return newSession(browserCtx, func() {
		browserCancel()
		allocCancel()
		_ = os.RemoveAll(profileDir)
	}), nil
}

func (l *Launcher) Release(s *Session, _ error) {
	s.close()
}
