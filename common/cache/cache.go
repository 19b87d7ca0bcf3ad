// Package cache holds small in-process caches shared by the services.
package cache

import (
	"sync"
	"time"
)

// BlockTimestamps memoizes block number to timestamp lookups during event
// normalization. A mined block's timestamp never changes, so entries need
// no TTL; the cache is bounded and evicts its oldest insertion when full
// (several logs usually share a block, and blocks arrive roughly in order).
type BlockTimestamps struct {
	mu      sync.RWMutex
	data    map[uint64]time.Time
	order   []uint64
	maxSize int
}

// NewBlockTimestamps creates a bounded timestamp cache. Sizes below 1 fall
// back to a single entry.
func NewBlockTimestamps(maxSize int) *BlockTimestamps {
	if maxSize < 1 {
		maxSize = 1
	}
	return &BlockTimestamps{
		data:    make(map[uint64]time.Time, maxSize),
		order:   make([]uint64, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns the cached timestamp for a block
func (c *BlockTimestamps) Get(block uint64) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ts, ok := c.data[block]
	return ts, ok
}

// Put records a block timestamp, evicting the oldest insertion when full
func (c *BlockTimestamps) Put(block uint64, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[block]; exists {
		return
	}

	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}

	c.data[block] = ts
	c.order = append(c.order, block)
}

// Len returns the number of cached blocks
func (c *BlockTimestamps) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}
