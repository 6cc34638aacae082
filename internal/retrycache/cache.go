// Package retrycache tracks pairs whose last operation failed, holding them
// back for a cool-down before re-attempt. Entries live purely in memory:
// losing them on restart only causes one extra immediate retry, never a
// correctness violation.
package retrycache

import (
	"sync"
	"time"
)

// DefaultCoolDown is the policy default before a failed pair is retried.
const DefaultCoolDown = 5 * time.Minute

// Cache records the last failure time per pair id.
type Cache struct {
	mu      sync.Mutex
	entries map[int64]time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[int64]time.Time)}
}

// MarkFailed records a failure timestamp for the pair.
func (c *Cache) MarkFailed(id int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = now
}

// IsEligible reports whether the pair may be retried: true if no failure is
// recorded, or the recorded failure is older than coolDown.
func (c *Cache) IsEligible(id int64, now time.Time, coolDown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	failedAt, ok := c.entries[id]
	if !ok {
		return true
	}
	if now.Sub(failedAt) > coolDown {
		// Cool-down elapsed; drop the stale entry so a fresh failure
		// restarts the clock.
		delete(c.entries, id)
		return true
	}
	return false
}

// Clear removes the pair's failure record, if any. Called on successful
// transition.
func (c *Cache) Clear(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len returns the number of pairs currently held back.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
