// Package session holds the runtime parameters of the running engine that
// the user may change at any time.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
)

// ModeListener is called after the interaction mode changed.
type ModeListener func(prev, next core.Mode)

// Context holds the current interaction mode and decay rate
type Context struct {
	mu        sync.RWMutex
	mode      core.Mode
	decayRate time.Duration
	listeners []ModeListener
}

// NewContext creates a new Context in dragging mode with the given decay rate
func NewContext(decayRate time.Duration) *Context {
	return &Context{
		mode:      core.ModeDragging,
		decayRate: decayRate,
	}
}

// Mode returns the current interaction mode
func (c *Context) Mode() core.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode switches the interaction mode and notifies listeners when it changed
func (c *Context) SetMode(m core.Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mode = m
	listeners := c.listeners
	c.mu.Unlock()

	if prev == m {
		return
	}
	for _, l := range listeners {
		l(prev, m)
	}
}

// OnModeChange registers a listener for mode changes
func (c *Context) OnModeChange(l ModeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// DecayRate returns the current decay rate. Zero or less disables decay.
func (c *Context) DecayRate() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.decayRate
}

// SetDecayRate changes the decay rate; negative values are stored as zero
func (c *Context) SetDecayRate(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decayRate = d
}

// LogAttrs returns the session state as log attributes
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []slog.Attr{
		slog.String("mode", string(c.mode)),
		slog.Duration("decayRate", c.decayRate),
	}
}
