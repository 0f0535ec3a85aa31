package domain

import "time"

type EngineMode string

const (
	EngineModeRun   EngineMode = "run"
	EngineModePause EngineMode = "pause"
)

// EngineStatus is a read-only view of the engine for APIs.
type EngineStatus struct {
	Worker      WorkerName    `json:"worker"`
	Mode        EngineMode    `json:"mode"`
	Priority    string        `json:"priority"`
	Interval    time.Duration `json:"interval"`
	IntervalStr string        `json:"interval_text"`
	Cycles      uint64        `json:"cycles"`
	LastCycle   time.Time     `json:"last_cycle"`
	Running     bool          `json:"running"`
}

// WorkerInfo describes a worker known to the host.
type WorkerInfo struct {
	Name     WorkerName `json:"name"`
	Running  bool       `json:"running"`
	Priority string     `json:"priority"`
	Bindings int        `json:"bindings"`
}
