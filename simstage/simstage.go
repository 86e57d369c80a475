// Package simstage tracks the lifecycle of a simulation session so the
// facade can reject re-entrant calls and use-after-close.
package simstage

import (
	"sync/atomic"
)

type Stage string

const (
	Ready    Stage = "Ready"    // Session is idle and can accept a call
	Running  Stage = "Running"  // A call tree is currently executing
	ShutDown Stage = "ShutDown" // Session is closed; no further use is valid
)

type Manager struct {
	current *atomic.Value
}

func NewManager() *Manager {
	m := &Manager{
		current: &atomic.Value{},
	}
	m.Store(Ready)
	return m
}

func (m *Manager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *Manager) Current() Stage {
	return m.current.Load().(Stage)
}

func (m *Manager) Store(val Stage) {
	m.current.Store(val)
}
