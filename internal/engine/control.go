package engine

import (
	"errors"
	"time"

	"github.com/dkeye/Engine/internal/domain"
)

var ErrStopped = errors.New("engine stopped")

// Control is the handle the engine hands to bound clients.
type Control struct {
	engine *Engine
}

func (c *Control) Worker() domain.WorkerName { return c.engine.name }

func (c *Control) Status() domain.EngineStatus { return c.engine.status() }

func (c *Control) Pause() error {
	if c.engine.stopped.Load() {
		return ErrStopped
	}
	c.engine.ctrl.SetMode(domain.EngineModePause)
	return nil
}

func (c *Control) Resume() error {
	if c.engine.stopped.Load() {
		return ErrStopped
	}
	c.engine.ctrl.SetMode(domain.EngineModeRun)
	return nil
}

func (c *Control) Step() error {
	if c.engine.stopped.Load() {
		return ErrStopped
	}
	c.engine.ctrl.Step()
	return nil
}

func (c *Control) SetInterval(d time.Duration) error {
	if c.engine.stopped.Load() {
		return ErrStopped
	}
	c.engine.ctrl.SetInterval(d)
	return nil
}
