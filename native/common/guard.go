package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a mutable PauseView keyed by module name.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses seeds the view with the supplied module flags.
func NewPauses(initial map[string]bool) *Pauses {
	p := &Pauses{paused: make(map[string]bool)}
	for module, paused := range initial {
		p.paused[normalizeModule(module)] = paused
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normalizeModule(module)]
}

// Set toggles the pause flag of a module.
func (p *Pauses) Set(module string, paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.paused[normalizeModule(module)] = paused
	p.mu.Unlock()
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
