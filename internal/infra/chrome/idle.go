package chrome

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const lifecycleNetworkIdle = "networkIdle"

// idleWatcher records networkIdle lifecycle events per loader so that an
// event arriving before the wait starts is not lost.
type idleWatcher struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]struct{}
	notify chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{
		seen:   make(map[cdp.LoaderID]struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (w *idleWatcher) handle(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != lifecycleNetworkIdle {
		return
	}
	w.mu.Lock()
	w.seen[e.LoaderID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *idleWatcher) idle(loader cdp.LoaderID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[loader]
	return ok
}

// wait blocks until loader reached network idle or ctx is done.
func (w *idleWatcher) wait(ctx context.Context, loader cdp.LoaderID) error {
	for {
		if w.idle(loader) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.notify:
		}
	}
}

// navigateAndWaitIdle loads url and returns once the main frame had no
// network activity for Chrome's idle window.
func navigateAndWaitIdle(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		w := newIdleWatcher()
		chromedp.ListenTarget(ctx, w.handle)

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Navigate(url).Do(ctx); err != nil {
			return err
		}
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return w.wait(ctx, tree.Frame.LoaderID)
	})
}
