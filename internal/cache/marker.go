package cache

import (
	"sync"

	"github.com/dfmap/dfmap/pkg/core"
)

// RFFCache maps receiver station names to their markers so feed records can
// be resolved without scanning the marker list.
type RFFCache struct {
	mu      sync.RWMutex
	markers map[string]core.Marker
}

// NewRFFCache creates a new RFFCache
func NewRFFCache() *RFFCache {
	return &RFFCache{
		markers: make(map[string]core.Marker),
	}
}

// Get retrieves an RFF marker by name
func (c *RFFCache) Get(name string) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[name]
	return m, ok
}

// Set stores an RFF marker under its label. Markers without a label are ignored.
func (c *RFFCache) Set(m core.Marker) {
	name := m.Label()
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// first registration wins, matching a linear scan over markers
	if _, exists := c.markers[name]; exists {
		return
	}
	c.markers[name] = m
}

// Delete removes the entry for a marker, if that marker is the one indexed
// under its label.
func (c *RFFCache) Delete(m core.Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.markers[m.Label()]; ok && cur.ID == m.ID {
		delete(c.markers, m.Label())
	}
}

// Len returns the number of indexed stations
func (c *RFFCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}
