package tokens

import (
	"context"
	"time"

	"url2pdf/internal/infra/logging"
)

// Loader reads the full token set from its backing store.
type Loader interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Reloader keeps a Cache in sync with a Loader.
type Reloader struct {
	cache    *Cache
	loader   Loader
	interval time.Duration
}

func NewReloader(cache *Cache, loader Loader, interval time.Duration) *Reloader {
	return &Reloader{cache: cache, loader: loader, interval: interval}
}

// LoadOnce replaces the cache with a fresh copy. On error the previous
// tokens stay in place.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	m, err := r.loader.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(m)
	logging.Info("API tokens loaded", "count", len(m))
	return nil
}

// Start loads tokens immediately and then every interval until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	if err := r.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
