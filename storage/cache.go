package storage

import (
	"sync"
	"time"

	"board-api/domain"
)

// DefaultCacheTTL bounds how stale the board snapshot can get if an
// invalidation is ever missed.
const DefaultCacheTTL = 10 * time.Second

// SnapshotCache holds the one board view this process serves between
// invalidations. It is shared by every request handler, so all access goes
// through the mutex. The cache is strictly single-process: peers learn about
// writes through the change feed, which calls Invalidate here.
type SnapshotCache struct {
	mu        sync.Mutex
	view      domain.BoardView
	expires   time.Time
	populated bool
	ttl       time.Duration

	now func() time.Time
}

// NewSnapshotCache creates an empty cache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SnapshotCache{ttl: ttl, now: time.Now}
}

// Get returns the cached view when present and not expired.
func (c *SnapshotCache) Get() (domain.BoardView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.populated || c.now().After(c.expires) {
		return domain.BoardView{}, false
	}
	return c.view, true
}

// Set stores a fresh view and restarts the TTL clock.
func (c *SnapshotCache) Set(view domain.BoardView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
	c.expires = c.now().Add(c.ttl)
	c.populated = true
}

// Invalidate clears the cached view. Safe to call repeatedly.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = domain.BoardView{}
	c.populated = false
}
