package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's non-admin mutating operations are
// halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name is treated as unpaused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseRegistry is an in-memory pause switchboard implementing PauseView.
type PauseRegistry struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseRegistry constructs an empty registry with everything unpaused.
func NewPauseRegistry() *PauseRegistry {
	return &PauseRegistry{paused: make(map[string]bool)}
}

// Pause halts the named module.
func (r *PauseRegistry) Pause(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused[module] = true
}

// Unpause resumes the named module.
func (r *PauseRegistry) Unpause(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paused, module)
}

// Modules lists the currently paused modules, for snapshotting.
func (r *PauseRegistry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for module, paused := range r.paused {
		if paused {
			out = append(out, module)
		}
	}
	return out
}

// IsPaused implements PauseView.
func (r *PauseRegistry) IsPaused(module string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused[module]
}
