package host

import (
	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/rs/zerolog/log"
)

type delivery struct {
	binding *binding
	worker  domain.WorkerName
	handle  core.ControlHandle
	connect bool
}

func (h *Host) enqueueLocked(d delivery) {
	h.queue = append(h.queue, d)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) dispatch() {
	defer close(h.dispatchDone)
	for {
		select {
		case <-h.wake:
			h.drain()
		case <-h.quit:
			h.drain()
			return
		}
	}
}

func (h *Host) drain() {
	for {
		if !h.deliverNext() {
			return
		}
	}
}

// deliverNext pops one delivery and runs it. It returns false once the queue is empty.
func (h *Host) deliverNext() bool {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	if len(h.queue) == 0 {
		h.mu.Unlock()
		return false
	}
	d := h.queue[0]
	h.queue[0] = delivery{}
	h.queue = h.queue[1:]
	id := d.binding.target.ID()
	live := h.bindings[id] == d.binding
	h.mu.Unlock()

	if !live {
		log.Debug().Str("module", "host").Str("target", id).Msg("dropped callback for unbound target")
		return true
	}
	if d.connect {
		d.binding.target.OnConnected(d.worker, d.handle)
		h.telemetry.IncConnected(string(d.worker))
	} else {
		d.binding.target.OnDisconnected(d.worker)
		h.telemetry.IncDisconnected(string(d.worker))
	}
	return true
}
