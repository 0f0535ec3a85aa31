package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CommandRateLimiter allows bursts of up to limit control commands per client,
// refilled at limit per interval.
type CommandRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func NewCommandRateLimiter(limit int, interval time.Duration) *CommandRateLimiter {
	rl := &CommandRateLimiter{
		clients: make(map[string]*clientLimiter),
		burst:   limit,
		idle:    interval,
		now:     time.Now,
	}
	if limit > 0 && interval > 0 {
		rl.rate = rate.Every(interval / time.Duration(limit))
	}
	return rl
}

func (rl *CommandRateLimiter) Allow(client string) bool {
	if rl == nil || rl.burst <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Cleanup drops clients that sent nothing for a full interval; their bucket
// has refilled by then, so a new one behaves the same.
func (rl *CommandRateLimiter) Cleanup() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	for client, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

// StartCleanup runs Cleanup every period until ctx is done.
func (rl *CommandRateLimiter) StartCleanup(ctx context.Context, period time.Duration) {
	if rl == nil || period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}

func (rl *CommandRateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
