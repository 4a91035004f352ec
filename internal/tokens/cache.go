package tokens

import "sync"

// Entry is the per-token configuration.
type Entry struct {
	// RateLimit is the number of requests allowed per limiter interval.
	// Zero disables rate limiting for the token.
	RateLimit int
}

// Cache is the in-memory copy of the token table.
type Cache struct {
	mu     sync.RWMutex
	tokens map[string]Entry
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps in a new token set. The map is copied.
func (c *Cache) Replace(m map[string]Entry) {
	next := make(map[string]Entry, len(m))
	for k, v := range m {
		next[k] = v
	}
	c.mu.Lock()
	c.tokens = next
	c.mu.Unlock()
}

// Ready reports whether tokens have been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens != nil
}

// Valid checks whether the token exists.
func (c *Cache) Valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tokens[token]
	return ok
}

// RateLimit returns the limit for token, or 0 if it is unknown.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[token].RateLimit
}
