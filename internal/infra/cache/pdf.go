package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"url2pdf/internal/domain"
	"url2pdf/internal/infra/logging"
)

const (
	keyPrefix  = "pdfcache:"
	defaultTTL = time.Minute
	opTimeout  = time.Second
)

// PDFCache stores rendered PDFs in Redis.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient opens a Redis client for the given address and database.
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// New returns a cache writing entries with the given TTL. A non-positive TTL
// falls back to one minute.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the normalized options.
func Key(opts domain.ConversionOptions) string {
	h := sha256.New()
	h.Write([]byte(opts.URL))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(opts.Viewport.Width) + "x" + strconv.Itoa(opts.Viewport.Height)))
	for _, m := range []string{opts.Margins.Top, opts.Margins.Right, opts.Margins.Bottom, opts.Margins.Left} {
		h.Write([]byte{0})
		h.Write([]byte(m))
	}
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(opts.Scale, 'f', -1, 64)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF, or nil without error on a miss.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}
	logging.Info("PDF cache hit", "key", key)
	return data, nil
}

// Set stores pdf under key. Failures are logged and otherwise ignored.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, pdf, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
