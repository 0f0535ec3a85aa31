package host

import (
	"context"
	"fmt"

	"github.com/dkeye/Engine/internal/domain"
	"github.com/rs/zerolog/log"
)

// StartWorker starts the named worker on behalf of nobody in particular. It
// keeps running after its bindings go away, until StopWorker.
func (h *Host) StartWorker(name domain.WorkerName) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	w, ok := h.workers[name]
	if !ok {
		return fmt.Errorf("start %s: %w", name, ErrUnknownWorker)
	}
	if w.worker != nil {
		w.explicit = true
		return nil
	}
	if err := h.startLocked(w, true); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	h.connectPendingLocked(w)
	h.reprioritizeLocked(w)
	return nil
}

// StopWorker stops a running worker. Every connected target receives
// OnDisconnected; the bindings stay and reconnect when the worker comes back.
func (h *Host) StopWorker(name domain.WorkerName) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.workers[name]
	if !ok {
		return fmt.Errorf("stop %s: %w", name, ErrUnknownWorker)
	}
	if w.worker == nil {
		return fmt.Errorf("stop %s: %w", name, ErrNotRunning)
	}
	h.stopLocked(w)
	return nil
}

func (h *Host) startLocked(w *workerEntry, explicit bool) error {
	worker, err := w.factory(w.name)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	ctx, cancel := context.WithCancel(h.ctx)
	w.gen++
	gen := w.gen
	done := make(chan struct{})
	w.worker = worker
	w.cancel = cancel
	w.done = done
	w.explicit = explicit
	w.priority = domain.PriorityBackground
	worker.SetPriority(w.priority)
	h.telemetry.SetWorkerRunning(string(w.name), true)

	go func() {
		err := runWorker(ctx, worker.Run)
		close(done)
		h.onWorkerExit(w.name, gen, err)
	}()

	log.Info().Str("module", "host").Str("worker", string(w.name)).Bool("explicit", explicit).Msg("worker started")
	return nil
}

func runWorker(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return run(ctx)
}

func (h *Host) stopLocked(w *workerEntry) {
	if w.cancel != nil {
		w.cancel()
	}
	w.worker = nil
	w.cancel = nil
	w.explicit = false
	w.priority = domain.PriorityBackground
	h.telemetry.SetWorkerRunning(string(w.name), false)

	for _, b := range h.bindings {
		if b.worker != w.name || !b.connected {
			continue
		}
		b.connected = false
		h.enqueueLocked(delivery{binding: b, worker: w.name})
	}
	log.Info().Str("module", "host").Str("worker", string(w.name)).Msg("worker stopped")
}

// onWorkerExit handles a worker whose run loop ended without being asked to.
func (h *Host) onWorkerExit(name domain.WorkerName, gen uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.workers[name]
	if !ok || w.gen != gen || w.worker == nil {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "host").Str("worker", string(name)).Msg("worker failed")
	} else {
		log.Warn().Str("module", "host").Str("worker", string(name)).Msg("worker exited")
	}
	h.stopLocked(w)
}
