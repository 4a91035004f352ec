package chrome

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"url2pdf/internal/domain"
	"url2pdf/internal/infra/logging"
)

const defaultAcquireTimeout = 5 * time.Second

// Renderer prints pages with sessions taken from a Source.
type Renderer struct {
	source         Source
	acquireTimeout time.Duration
}

// NewRenderer returns a renderer backed by source. Use a Launcher for one
// browser per request or a Pool to share a browser between requests.
func NewRenderer(source Source) *Renderer {
	return &Renderer{source: source, acquireTimeout: defaultAcquireTimeout}
}

// RenderPageToPDF loads req.URL, waits for the configured condition and the
// settle delay, then prints the page. The session is released before
// returning, whatever the outcome. Errors are classified as timeout or render
// errors.
func (r *Renderer) RenderPageToPDF(ctx context.Context, req domain.RenderRequest) ([]byte, error) {
	params, err := buildPrintToPDFParams(req.PDF)
	if err != nil {
		return nil, domain.NewError(domain.KindRender, "Failed to generate PDF", err)
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, r.acquireTimeout)
	s, err := r.source.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		return nil, domain.NewError(domain.KindRender, "Failed to generate PDF", fmt.Errorf("no browser available: %w", err))
	}

	var renderErr error
	defer func() { r.source.Release(s, renderErr) }()

	var (
		runCtx    context.Context
		cancelRun context.CancelFunc
	)
	if req.Timeout > 0 {
		runCtx, cancelRun = context.WithTimeout(s.Ctx, req.Timeout)
	} else {
		runCtx, cancelRun = context.WithCancel(s.Ctx)
	}
	defer cancelRun()
	// Abandon the render when the caller goes away.
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	start := time.Now()
	var pdf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(req.Viewport.Width), int64(req.Viewport.Height)),
		waitAction(req),
		chromedp.Sleep(req.SettleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = params.Do(ctx)
			return err
		}),
	}

	if renderErr = chromedp.Run(runCtx, actions...); renderErr != nil {
		logging.Warn("Page render failed", "url", req.URL, "duration_ms", time.Since(start).Milliseconds(), "error", renderErr)
		return nil, domain.ClassifyRenderError(renderErr)
	}

	logging.Debug("Page rendered", "url", req.URL, "bytes", len(pdf), "duration_ms", time.Since(start).Milliseconds())
	return pdf, nil
}

func waitAction(req domain.RenderRequest) chromedp.Action {
	if req.WaitCondition == domain.WaitLoad {
		return chromedp.Navigate(req.URL)
	}
	return navigateAndWaitIdle(req.URL)
}
