package session

import (
	"context"
	"log"
	"time"
)

// DefaultCleanupInterval is how often the idle sweep runs.
const DefaultCleanupInterval = 1 * time.Minute

// Cleaner periodically evicts idle sessions from a store.
type Cleaner struct {
	store    *Store
	maxIdle  time.Duration
	interval time.Duration
}

// NewCleaner builds a cleaner; non-positive durations use the defaults.
func NewCleaner(store *Store, maxIdle, interval time.Duration) *Cleaner {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Cleaner{store: store, maxIdle: maxIdle, interval: interval}
}

// Run sweeps until the context is cancelled. Call in its own goroutine.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.store.EvictIdle(c.maxIdle); removed > 0 {
				log.Printf("[session] evicted %d idle sessions, %d remain", removed, c.store.Len())
			}
		}
	}
}
