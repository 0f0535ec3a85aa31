// Package engine implements the background worker that front ends bind to.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine runs a paced cycle loop until its context ends.
type Engine struct {
	name      domain.WorkerName
	ctrl      *cycleController
	control   *Control
	logger    zerolog.Logger
	cycles    atomic.Uint64
	lastCycle atomic.Int64
	stopped   atomic.Bool
}

func New(name domain.WorkerName, interval time.Duration) *Engine {
	e := &Engine{
		name: name,
		ctrl: newCycleController(interval),
		logger: log.With().
			Str("module", "engine").
			Str("worker", string(name)).
			Logger(),
	}
	e.control = &Control{engine: e}
	return e
}

// Factory builds engines with the given base interval for the host.
func Factory(interval time.Duration) core.WorkerFactory {
	return func(name domain.WorkerName) (core.Worker, error) {
		return New(name, interval), nil
	}
}

func (e *Engine) Run(ctx context.Context) error {
	defer e.stopped.Store(true)
	e.logger.Info().Msg("engine loop started")
	for {
		ts, err := e.ctrl.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				e.logger.Info().Uint64("cycles", e.cycles.Load()).Msg("engine loop stopped")
				return nil
			}
			return err
		}
		e.cycle(ts)
	}
}

func (e *Engine) cycle(ts time.Time) {
	n := e.cycles.Add(1)
	e.lastCycle.Store(ts.UnixNano())
	e.logger.Debug().Uint64("cycle", n).Msg("cycle")
}

func (e *Engine) Control() core.ControlHandle { return e.control }

func (e *Engine) SetPriority(p domain.Priority) {
	e.ctrl.SetPriority(p)
	e.logger.Info().Str("priority", p.String()).Msg("priority adjusted")
}

func (e *Engine) status() domain.EngineStatus {
	mode, interval, priority := e.ctrl.snapshot()
	st := domain.EngineStatus{
		Worker:      e.name,
		Mode:        mode,
		Priority:    priority.String(),
		Interval:    interval,
		IntervalStr: interval.String(),
		Cycles:      e.cycles.Load(),
		Running:     !e.stopped.Load(),
	}
	if ns := e.lastCycle.Load(); ns != 0 {
		st.LastCycle = time.Unix(0, ns)
	}
	return st
}
