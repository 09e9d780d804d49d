package config

import "sync"

// Runtime holds the operator-togglable upstream switches. Marketplace clients
// snapshot it at construction time; flipping a switch affects clients built
// afterwards, never ones already in flight.
type Runtime struct {
	mu            sync.RWMutex
	forceDemo     bool
	allowFallback bool
	useBackup     bool
}

type RuntimeState struct {
	ForceDemo         bool
	AllowDemoFallback bool
	UseBackupURL      bool
}

func NewRuntime(forceDemo, allowFallback bool) *Runtime {
	return &Runtime{forceDemo: forceDemo, allowFallback: allowFallback}
}

func (r *Runtime) Snapshot() RuntimeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RuntimeState{
		ForceDemo:         r.forceDemo,
		AllowDemoFallback: r.allowFallback,
		UseBackupURL:      r.useBackup,
	}
}

func (r *Runtime) ToggleForceDemo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceDemo = !r.forceDemo
	return r.forceDemo
}

func (r *Runtime) ToggleDemoFallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowFallback = !r.allowFallback
	return r.allowFallback
}

func (r *Runtime) SetUseBackupURL(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useBackup = v
}
