// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxWorkerNameLen = 64

var (
	ErrWorkerNameEmpty   = errors.New("worker name empty")
	ErrWorkerNameTooLong = errors.New("worker name too long")
)

type WorkerName string

// ParseWorkerName trims and validates a name coming from config or HTTP.
func ParseWorkerName(raw string) (WorkerName, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", ErrWorkerNameEmpty
	}
	if len(name) > MaxWorkerNameLen {
		return "", ErrWorkerNameTooLong
	}
	return WorkerName(name), nil
}

// BindFlags select how the host treats a binding request.
type BindFlags uint8

const (
	// CreateIfAbsent starts the worker when it is not running yet.
	CreateIfAbsent BindFlags = 1 << iota
	// AdjustWithRequester lets the requester's visibility raise the worker priority.
	AdjustWithRequester
)

func (f BindFlags) Has(flag BindFlags) bool { return f&flag == flag }

func (f BindFlags) String() string {
	parts := make([]string, 0, 2)
	if f.Has(CreateIfAbsent) {
		parts = append(parts, "create_if_absent")
	}
	if f.Has(AdjustWithRequester) {
		parts = append(parts, "adjust_with_requester")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
