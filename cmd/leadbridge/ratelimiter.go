package main

import (
	"sync"
	"time"
)

// RateLimiter is a sliding window limiter keyed by caller source id.
// Keys with no request inside the window are pruned.
type RateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	limit       int
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// NewRateLimiter allows limit requests per key in any window. A limit
// below one blocks everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 0 {
		limit = 0
	}
	return &RateLimiter{
		requests:    make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow records a request for key and reports whether it is within limits
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Check(key)
	return ok
}

// Check records a request for key. When the request is refused it also
// returns how long until the oldest request in the window expires.
func (rl *RateLimiter) Check(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	if now.Sub(rl.lastCleanup) >= rl.window {
		rl.prune(cutoff)
		rl.lastCleanup = now
	}

	recent := inWindow(rl.requests[key], cutoff)
	if len(recent) >= rl.limit {
		if len(recent) == 0 {
			delete(rl.requests, key)
			return false, rl.window
		}
		rl.requests[key] = recent
		return false, recent[0].Sub(cutoff)
	}

	rl.requests[key] = append(recent, now)
	return true, 0
}

// SetLimit changes limit and window, keeping recorded requests
func (rl *RateLimiter) SetLimit(limit int, window time.Duration) {
	if limit < 0 {
		limit = 0
	}
	rl.mu.Lock()
	rl.limit = limit
	rl.window = window
	rl.mu.Unlock()
}

// Limits returns the current limit and window
func (rl *RateLimiter) Limits() (int, time.Duration) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limit, rl.window
}

// Keys returns the number of tracked source ids
func (rl *RateLimiter) Keys() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.requests)
}

func (rl *RateLimiter) prune(cutoff time.Time) {
	for key, times := range rl.requests {
		recent := inWindow(times, cutoff)
		if len(recent) == 0 {
			delete(rl.requests, key)
			continue
		}
		rl.requests[key] = recent
	}
}

// inWindow drops timestamps at or before cutoff. times is sorted.
func inWindow(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
