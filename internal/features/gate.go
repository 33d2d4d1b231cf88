// Package features answers "is this experimental feature on?" from the
// configuration and keeps the answer current as the config file changes.
package features

import (
	"errors"
	"sync"
)

// ErrUnavailable is returned once the gate has been closed.
var ErrUnavailable = errors.New("feature gate unavailable")

// Gate holds the current feature switches.
type Gate struct {
	mu       sync.RWMutex
	features map[string]bool
	closed   bool
}

// NewGate creates a gate from a feature map.
func NewGate(features map[string]bool) *Gate {
	g := &Gate{}
	g.Set(features)
	return g
}

// Enabled reports whether id is on. Unknown features are off.
func (g *Gate) Enabled(id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return false, ErrUnavailable
	}
	return g.features[id], nil
}

// Set replaces all switches.
func (g *Gate) Set(features map[string]bool) {
	cp := make(map[string]bool, len(features))
	for k, v := range features {
		cp[k] = v
	}
	g.mu.Lock()
	g.features = cp
	g.mu.Unlock()
}

// Snapshot returns a copy of the current switches.
func (g *Gate) Snapshot() map[string]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp := make(map[string]bool, len(g.features))
	for k, v := range g.features {
		cp[k] = v
	}
	return cp
}

// Close makes every later lookup fail with ErrUnavailable.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
