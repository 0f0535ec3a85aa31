package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Engine/internal/domain"
)

const DefaultInterval = 500 * time.Millisecond

// cycleController paces the engine loop. In run mode it fires every
// effective interval; in pause mode it only fires on Step.
type cycleController struct {
	mu       sync.RWMutex
	mode     domain.EngineMode
	interval time.Duration
	priority domain.Priority
	notify   chan struct{}
	step     chan struct{}
}

func newCycleController(interval time.Duration) *cycleController {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &cycleController{
		mode:     domain.EngineModeRun,
		interval: interval,
		priority: domain.PriorityBackground,
		notify:   make(chan struct{}, 1),
		step:     make(chan struct{}, 1),
	}
}

// effective returns the interval stretched by the current priority.
func (c *cycleController) effective() time.Duration {
	switch c.priority {
	case domain.PriorityForeground:
		return c.interval
	case domain.PriorityVisible:
		return 2 * c.interval
	default:
		return 4 * c.interval
	}
}

func (c *cycleController) Wait(ctx context.Context) (time.Time, error) {
	for {
		c.mu.RLock()
		mode := c.mode
		interval := c.effective()
		c.mu.RUnlock()

		switch mode {
		case domain.EngineModeRun:
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return time.Time{}, ctx.Err()
			case <-timer.C:
				return time.Now(), nil
			case <-c.step:
				timer.Stop()
				return time.Now(), nil
			case <-c.notify:
				timer.Stop()
				continue
			}
		case domain.EngineModePause:
			select {
			case <-ctx.Done():
				return time.Time{}, ctx.Err()
			case <-c.step:
				return time.Now(), nil
			case <-c.notify:
				continue
			}
		default:
			return time.Time{}, errors.New("unknown engine mode")
		}
	}
}

func (c *cycleController) SetMode(mode domain.EngineMode) {
	c.mu.Lock()
	if c.mode == mode {
		c.mu.Unlock()
		return
	}
	c.mode = mode
	c.mu.Unlock()
	c.signal()
}

// Step pauses the loop and lets exactly one cycle through.
func (c *cycleController) Step() {
	c.mu.Lock()
	changed := c.mode != domain.EngineModePause
	c.mode = domain.EngineModePause
	c.mu.Unlock()
	select {
	case c.step <- struct{}{}:
	default:
	}
	if changed {
		c.signal()
	}
}

func (c *cycleController) SetInterval(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	c.mu.Lock()
	if c.interval == d {
		c.mu.Unlock()
		return
	}
	c.interval = d
	c.mu.Unlock()
	c.signal()
}

func (c *cycleController) SetPriority(p domain.Priority) {
	c.mu.Lock()
	if c.priority == p {
		c.mu.Unlock()
		return
	}
	c.priority = p
	c.mu.Unlock()
	c.signal()
}

func (c *cycleController) snapshot() (domain.EngineMode, time.Duration, domain.Priority) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode, c.interval, c.priority
}

func (c *cycleController) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
