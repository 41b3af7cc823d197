// Package area implements freehand polygon drawing: vertices are collected
// click by click until a click lands close to the first vertex.
package area

import (
	"math"
	"sync"

	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
)

// DefaultTolerancePx is the screen distance within which a click closes the outline.
const DefaultTolerancePx = 7.0

// Vertex is a click in both screen and map coordinates.
type Vertex struct {
	ScreenX float64
	ScreenY float64
	Point   core.Point
}

// Committer persists a closed outline.
type Committer interface {
	AddArea(edges []core.Edge) core.Area
}

// Drafter holds the in-progress outline.
type Drafter struct {
	committer       Committer
	tolerancePx     float64
	toleranceMeters float64

	mu    sync.Mutex
	first *Vertex
	prev  Vertex
	edges []core.Edge
}

// NewDrafter creates a Drafter. When toleranceMeters is positive closure is
// decided by great-circle distance, otherwise by screen distance.
func NewDrafter(c Committer, tolerancePx, toleranceMeters float64) *Drafter {
	if tolerancePx <= 0 {
		tolerancePx = DefaultTolerancePx
	}
	return &Drafter{committer: c, tolerancePx: tolerancePx, toleranceMeters: toleranceMeters}
}

// Click feeds one vertex. When it closes the outline the area is committed,
// the draft is reset and the committed area is returned with done=true.
func (d *Drafter) Click(v Vertex) (core.Area, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.first == nil {
		first := v
		d.first = &first
		d.prev = v
		return core.Area{}, false
	}

	if d.closes(v) {
		edges := make([]core.Edge, 0, len(d.edges)+1)
		edges = append(edges, d.edges...)
		edges = append(edges, core.Edge{d.prev.Point, d.first.Point})
		a := d.committer.AddArea(edges)
		d.resetLocked()
		return a, true
	}

	d.edges = append(d.edges, core.Edge{d.prev.Point, v.Point})
	d.prev = v
	return core.Area{}, false
}

func (d *Drafter) closes(v Vertex) bool {
	if d.toleranceMeters > 0 {
		return geo.Distance(v.Point, d.first.Point) <= d.toleranceMeters
	}
	return math.Hypot(v.ScreenX-d.first.ScreenX, v.ScreenY-d.first.ScreenY) <= d.tolerancePx
}

// Reset discards the draft.
func (d *Drafter) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Drafter) resetLocked() {
	d.first = nil
	d.prev = Vertex{}
	d.edges = nil
}

// Drawing reports whether an outline is in progress.
func (d *Drafter) Drawing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.first != nil
}

// Pending returns a copy of the edges drawn so far.
func (d *Drafter) Pending() []core.Edge {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Edge(nil), d.edges...)
}
