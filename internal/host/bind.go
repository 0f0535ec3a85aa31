package host

import (
	"fmt"

	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/rs/zerolog/log"
)

// Bind records a binding of target to the named worker. With CreateIfAbsent
// a missing worker is created; without it the binding waits until the worker
// is started by someone else. OnConnected is delivered asynchronously.
func (h *Host) Bind(name domain.WorkerName, flags domain.BindFlags, target core.Target) error {
	if target == nil {
		return fmt.Errorf("bind %s: nil target", name)
	}
	id := target.ID()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, ok := h.bindings[id]; ok {
		return fmt.Errorf("bind %s for %s: %w", name, id, ErrAlreadyBound)
	}
	w, ok := h.workers[name]
	if !ok {
		return fmt.Errorf("bind %s: %w", name, ErrUnknownWorker)
	}

	b := &binding{target: target, worker: name, flags: flags, visibility: DefaultVisibility}
	h.bindings[id] = b

	if w.worker == nil {
		if !flags.Has(domain.CreateIfAbsent) {
			h.telemetry.IncBind(string(name))
			h.telemetry.SetBindings(string(name), h.countLocked(name))
			log.Info().Str("module", "host").Str("target", id).Str("worker", string(name)).Msg("binding pending, worker not running")
			return nil
		}
		if err := h.startLocked(w, false); err != nil {
			delete(h.bindings, id)
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}

	h.telemetry.IncBind(string(name))
	h.telemetry.SetBindings(string(name), h.countLocked(name))
	log.Info().Str("module", "host").Str("target", id).Str("worker", string(name)).Str("flags", flags.String()).Msg("bound")
	h.connectPendingLocked(w)
	h.reprioritizeLocked(w)
	return nil
}

// Unbind removes the binding. No disconnect callback is delivered for it, and
// any callback already queued for the target is dropped. A worker that was
// created by bindings stops once its last binding is gone.
func (h *Host) Unbind(target core.Target) error {
	if target == nil {
		return ErrNotBound
	}
	id := target.ID()

	// Wait out a callback that may be running for this target right now.
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bindings[id]
	if !ok {
		return fmt.Errorf("unbind %s: %w", id, ErrNotBound)
	}
	delete(h.bindings, id)

	name := b.worker
	h.telemetry.IncUnbind(string(name))
	h.telemetry.SetBindings(string(name), h.countLocked(name))
	log.Info().Str("module", "host").Str("target", id).Str("worker", string(name)).Msg("unbound")

	w := h.workers[name]
	if w == nil || w.worker == nil {
		return nil
	}
	if !w.explicit && h.countLocked(name) == 0 {
		log.Info().Str("module", "host").Str("worker", string(name)).Msg("last binding gone, stopping worker")
		h.stopLocked(w)
		return nil
	}
	h.reprioritizeLocked(w)
	return nil
}

// SetVisibility records how visible the requester behind targetID is. Workers
// bound with AdjustWithRequester follow the most visible of their requesters.
func (h *Host) SetVisibility(targetID string, v domain.Visibility) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bindings[targetID]
	if !ok {
		return fmt.Errorf("visibility %s: %w", targetID, ErrNotBound)
	}
	if b.visibility == v {
		return nil
	}
	b.visibility = v
	log.Debug().Str("module", "host").Str("target", targetID).Str("visibility", v.String()).Msg("visibility changed")
	if w := h.workers[b.worker]; w != nil {
		h.reprioritizeLocked(w)
	}
	return nil
}

func (h *Host) connectPendingLocked(w *workerEntry) {
	if w.worker == nil {
		return
	}
	handle := w.worker.Control()
	for _, b := range h.bindings {
		if b.worker != w.name || b.connected {
			continue
		}
		b.connected = true
		h.enqueueLocked(delivery{binding: b, worker: w.name, handle: handle, connect: true})
	}
}

func (h *Host) reprioritizeLocked(w *workerEntry) {
	p := domain.PriorityBackground
	for _, b := range h.bindings {
		if b.worker != w.name || !b.flags.Has(domain.AdjustWithRequester) {
			continue
		}
		if bp := domain.PriorityFor(b.visibility); bp > p {
			p = bp
		}
	}
	if w.priority == p {
		return
	}
	w.priority = p
	if w.worker != nil {
		w.worker.SetPriority(p)
	}
	log.Info().Str("module", "host").Str("worker", string(w.name)).Str("priority", p.String()).Msg("worker priority adjusted")
}
