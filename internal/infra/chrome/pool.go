package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"url2pdf/internal/config"
	"url2pdf/internal/infra/logging"
)

var (
	errPoolDisabled = errors.New("chrome pool disabled: chrome_pool_size must be > 0")
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("chrome pool closed")
)

// Pool shares one Chrome process between renders. Each session gets its own
// incognito browser context, so concurrent renders never share cookies,
// storage or tabs. Capacity is bounded by a semaphore.
type Pool struct {
	cfg config.RenderConfig

	mu          sync.Mutex
	sem         chan struct{}
	current     *browser
	retired     map[*browser]struct{}
	gen         uint64
	closed      bool
	restarts    int
	lastRestart time.Time

	// newTab overrides browser context creation in tests.
	newTab func(parent context.Context) (context.Context, context.CancelFunc)
}

// browser is one generation of the pool's Chrome process. A restart retires
// it; a retired browser is stopped once its last session is released.
type browser struct {
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string
	started     bool
	inUse       int
	retired     bool
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitempty"`
}

// NewPool prepares a pool of cfg.ChromePoolSize sessions. The browser itself
// is started on first use.
func NewPool(cfg config.RenderConfig) (*Pool, error) {
	if cfg.ChromePoolSize <= 0 {
		return nil, errPoolDisabled
	}
	p := &Pool{
		cfg: cfg,
		sem: make(chan struct{}, cfg.ChromePoolSize),
	}
	for i := 0; i < cfg.ChromePoolSize; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

// start must be called with p.mu held or before the pool is shared.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return fmt.Errorf("cannot create chrome profile dir: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.gen++
	p.current = &browser{
		gen:         p.gen,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		profileDir:  dir,
	}
	return nil
}

// stop shuts the process down and removes its profile.
func (b *browser) stop() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	if b.profileDir != "" {
		_ = os.RemoveAll(b.profileDir)
	}
}

// retire must be called with p.mu held. Sessions still running on b keep
// their browser until they are released.
func (p *Pool) retire(b *browser) {
	if b == nil || b.retired {
		return
	}
	b.retired = true
	if b.inUse == 0 {
		b.stop()
		return
	}
	if p.retired == nil {
		p.retired = make(map[*browser]struct{})
	}
	p.retired[b] = struct{}{}
}

// Acquire waits for a free slot and opens a new browser context in it.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.sem:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem <- struct{}{}
		return nil, ErrPoolClosed
	}

	if p.current == nil {
		if err := p.start(); err != nil {
			p.sem <- struct{}{}
			return nil, err
		}
	}
	b := p.current
	tabCtx, cancel, err := p.openTab(b)
	if err != nil {
		p.sem <- struct{}{}
		return nil, err
	}
	b.inUse++

	s := newSession(tabCtx, func() {
		cancel()
		p.mu.Lock()
		b.inUse--
		if b.retired && b.inUse == 0 {
			b.stop()
			delete(p.retired, b)
		}
		p.mu.Unlock()
		p.sem <- struct{}{}
	})
	s.gen = b.gen
	return s, nil
}

// openTab must be called with p.mu held.
func (p *Pool) openTab(b *browser) (context.Context, context.CancelFunc, error) {
	parent := b.ctx
	if parent == nil {
		parent = context.Background()
	}
	if p.newTab != nil {
		ctx, cancel := p.newTab(parent)
		return ctx, cancel, nil
	}
	if !b.started {
		// The first Run on the browser context launches Chrome.
		if err := chromedp.Run(parent); err != nil {
			return nil, nil, fmt.Errorf("chrome start failed: %w", err)
		}
		b.started = true
	}
	ctx, cancel := chromedp.NewContext(parent, chromedp.WithNewBrowserContext())
	return ctx, cancel, nil
}

// Release closes the session's browser context and returns its slot. A
// session that lost its browser triggers a restart so that later renders get
// a working process; the failed render itself is not retried. Failures from
// an already replaced browser do not restart again.
func (p *Pool) Release(s *Session, renderErr error) {
	s.close()
	if !isBrowserGone(renderErr) {
		return
	}
	if err := p.restartGeneration(s.gen); err != nil {
		logging.Error("Chrome pool restart failed", "error", err)
	}
}

func (p *Pool) restartGeneration(gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.current == nil || p.current.gen != gen {
		return nil
	}
	logging.Warn("Chrome session interrupted; restarting pool", "generation", gen)
	return p.restartLocked()
}

// Restart replaces the browser process and its profile directory. Sessions
// running on the old process finish before it is stopped.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	return p.restartLocked()
}

func (p *Pool) restartLocked() error {
	p.retire(p.current)
	if err := p.start(); err != nil {
		p.current = nil
		return err
	}
	p.restarts++
	p.lastRestart = time.Now()
	return nil
}

// Close stops the browser. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.current != nil {
		p.current.stop()
	}
	for b := range p.retired {
		b.stop()
	}
	p.retired = nil
}

// Stats reports capacity and usage of the pool.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	var profileDir string
	if p.current != nil {
		profileDir = p.current.profileDir
	}
	return Stats{
		Enabled:      !p.closed && p.sem != nil,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.ChromePoolSize,
		ProfileDir:   profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}
