// Package scheduler owns the crawl loop: worker dispatch, state
// transitions, politeness, stall detection, progress and persistence.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostRateLimiter enforces a per-host minimum delay on top of a global
// requests-per-second limit.
type HostRateLimiter struct {
	mu         sync.Mutex
	lastAccess map[string]time.Time
	crawlDelay time.Duration
	global     *rate.Limiter
}

// NewHostRateLimiter creates a limiter. rps 0 means no global limit;
// crawlDelay 0 means no per-host spacing.
func NewHostRateLimiter(crawlDelay time.Duration, rps float64) *HostRateLimiter {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps) + 1
	}
	return &HostRateLimiter{
		lastAccess: make(map[string]time.Time),
		crawlDelay: crawlDelay,
		global:     rate.NewLimiter(limit, burst),
	}
}

// Wait blocks until a request to host is polite, or the context ends.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	if err := r.global.Wait(ctx); err != nil {
		return err
	}

	if r.crawlDelay <= 0 {
		return nil
	}

	r.mu.Lock()
	last, seen := r.lastAccess[host]
	r.mu.Unlock()

	if seen {
		if wait := r.crawlDelay - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// RecordAccess notes that a request to host was just made.
func (r *HostRateLimiter) RecordAccess(host string) {
	if r.crawlDelay <= 0 {
		return
	}
	r.mu.Lock()
	r.lastAccess[host] = time.Now()
	r.mu.Unlock()
}
