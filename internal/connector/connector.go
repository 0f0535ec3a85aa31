// Package connector binds an owning context to a background worker and
// publishes the worker's control handle once the host reports the binding.
package connector

import (
	"sync/atomic"

	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BindFlags requested by Start: create the worker when missing and let the
// worker's priority follow the requester's visibility.
const BindFlags = domain.CreateIfAbsent | domain.AdjustWithRequester

type slot struct {
	handle core.ControlHandle
}

// ServiceConnector holds at most one control handle. The host writes it from
// its callback goroutine; Control may be called from anywhere.
type ServiceConnector struct {
	id     string
	worker domain.WorkerName
	handle atomic.Pointer[slot]
}

// New returns an unbound connector for the named worker.
func New(worker domain.WorkerName) *ServiceConnector {
	return &ServiceConnector{id: uuid.NewString(), worker: worker}
}

func (c *ServiceConnector) ID() string                { return c.id }
func (c *ServiceConnector) Worker() domain.WorkerName { return c.worker }

// Start asks the host to bind the worker. The handle appears later, when the
// host calls OnConnected. Bind failures are logged and otherwise silent.
func (c *ServiceConnector) Start(b core.Binder) {
	if err := b.Bind(c.worker, BindFlags, c); err != nil {
		log.Warn().Err(err).Str("module", "connector").Str("id", c.id).Str("worker", string(c.worker)).Msg("bind request failed")
		return
	}
	log.Info().Str("module", "connector").Str("id", c.id).Str("worker", string(c.worker)).Msg("bind requested")
}

// Stop releases the binding and drops the current handle so nothing acts on
// it after teardown.
func (c *ServiceConnector) Stop(b core.Binder) {
	if err := b.Unbind(c); err != nil {
		log.Warn().Err(err).Str("module", "connector").Str("id", c.id).Msg("unbind request failed")
	}
	c.handle.Store(nil)
	log.Info().Str("module", "connector").Str("id", c.id).Str("worker", string(c.worker)).Msg("unbound")
}

// Control returns the current handle, or false when no binding is active.
func (c *ServiceConnector) Control() (core.ControlHandle, bool) {
	s := c.handle.Load()
	if s == nil {
		return nil, false
	}
	return s.handle, true
}

// Bound reports whether a handle is currently held.
func (c *ServiceConnector) Bound() bool {
	return c.handle.Load() != nil
}

// OnConnected publishes handle as the current control handle. Hosts deliver a
// non-nil handle; an untyped nil clears the slot, a typed nil is stored as is.
func (c *ServiceConnector) OnConnected(name domain.WorkerName, handle core.ControlHandle) {
	if handle == nil {
		c.handle.Store(nil)
		return
	}
	c.handle.Store(&slot{handle: handle})
	log.Info().Str("module", "connector").Str("id", c.id).Str("worker", string(name)).Msg("connected")
}

// OnDisconnected drops the current handle.
func (c *ServiceConnector) OnDisconnected(name domain.WorkerName) {
	c.handle.Store(nil)
	log.Info().Str("module", "connector").Str("id", c.id).Str("worker", string(name)).Msg("disconnected")
}

var _ core.Target = (*ServiceConnector)(nil)
