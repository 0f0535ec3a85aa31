// Package host is an in-process binding environment: it owns workers, keeps
// the binding registry and delivers connect/disconnect callbacks to targets.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/dkeye/Engine/internal/telemetry"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownWorker = errors.New("unknown worker")
	ErrWorkerExists  = errors.New("worker already registered")
	ErrAlreadyBound  = errors.New("target already bound")
	ErrNotBound      = errors.New("target not bound")
	ErrNotRunning    = errors.New("worker not running")
	ErrClosed        = errors.New("host closed")
)

// DefaultVisibility is assumed for a target until it reports otherwise.
const DefaultVisibility = domain.Visible

type binding struct {
	target     core.Target
	worker     domain.WorkerName
	flags      domain.BindFlags
	visibility domain.Visibility
	connected  bool
}

type workerEntry struct {
	name     domain.WorkerName
	factory  core.WorkerFactory
	worker   core.Worker
	cancel   context.CancelFunc
	done     chan struct{}
	explicit bool
	priority domain.Priority
	gen      uint64
}

// Host implements core.Binder.
//
// Callbacks run on a single dispatcher goroutine in the order they were
// scheduled. Once Unbind returns, the target receives no further callbacks.
// Targets must not call Bind or Unbind from inside a callback.
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	workers   map[domain.WorkerName]*workerEntry
	bindings  map[string]*binding
	closed    bool
	telemetry telemetry.Collector

	deliverMu    sync.Mutex
	queue        []delivery
	wake         chan struct{}
	quit         chan struct{}
	dispatchDone chan struct{}
}

func New(parent context.Context, collector telemetry.Collector) *Host {
	if collector == nil {
		collector = telemetry.Noop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Host{
		ctx:          ctx,
		cancel:       cancel,
		workers:      make(map[domain.WorkerName]*workerEntry),
		bindings:     make(map[string]*binding),
		telemetry:    collector,
		wake:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Register installs the factory used whenever the named worker has to be created.
func (h *Host) Register(name domain.WorkerName, factory core.WorkerFactory) error {
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, ok := h.workers[name]; ok {
		return fmt.Errorf("register %s: %w", name, ErrWorkerExists)
	}
	h.workers[name] = &workerEntry{name: name, factory: factory}
	h.telemetry.SetWorkerRunning(string(name), false)
	log.Info().Str("module", "host").Str("worker", string(name)).Msg("worker registered")
	return nil
}

func (h *Host) Workers() []domain.WorkerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.WorkerInfo, 0, len(h.workers))
	for name, w := range h.workers {
		out = append(out, domain.WorkerInfo{
			Name:     name,
			Running:  w.worker != nil,
			Priority: w.priority.String(),
			Bindings: h.countLocked(name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops every worker, delivers the resulting disconnects and stops the
// dispatcher.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var done []chan struct{}
	for _, w := range h.workers {
		if w.worker == nil {
			continue
		}
		done = append(done, w.done)
		h.stopLocked(w)
	}
	h.mu.Unlock()

	for _, ch := range done {
		<-ch
	}
	h.cancel()
	close(h.quit)
	<-h.dispatchDone
	log.Info().Str("module", "host").Msg("host closed")
}

func (h *Host) countLocked(name domain.WorkerName) int {
	n := 0
	for _, b := range h.bindings {
		if b.worker == name {
			n++
		}
	}
	return n
}
