package core

import (
	"context"

	"github.com/dkeye/Engine/internal/domain"
)

// ControlHandle is the capability a bound worker hands out to its clients.
// Its shape beyond Worker() belongs to the worker.
type ControlHandle interface {
	Worker() domain.WorkerName
}

// Target receives binding notifications. The host calls both methods from
// its own goroutine, one at a time.
type Target interface {
	ID() string
	OnConnected(name domain.WorkerName, handle ControlHandle)
	OnDisconnected(name domain.WorkerName)
}

// Binder is the host side of a binding.
type Binder interface {
	Bind(name domain.WorkerName, flags domain.BindFlags, target Target) error
	Unbind(target Target) error
}

// Worker is a long-running background process managed by the host.
type Worker interface {
	// Run blocks until ctx is done or the worker fails.
	Run(ctx context.Context) error
	// Control returns a non-nil handle that stays valid while Run is active.
	Control() ControlHandle
	SetPriority(p domain.Priority)
}

// WorkerFactory builds a fresh worker each time the host needs to create one.
type WorkerFactory func(name domain.WorkerName) (Worker, error)
