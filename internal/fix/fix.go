// Package fix derives position fixes from crossing bearing lines drawn by
// different receiver stations.
package fix

import (
	"log/slog"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
)

// DefaultRadius is the radius of a fix circle in meters.
const DefaultRadius = 500.0

// CircleAdder accepts circles carrying their own ids.
type CircleAdder interface {
	AddCircles(circles []core.Circle) int
}

// Detector turns line intersections into fix circles.
type Detector struct {
	circles CircleAdder
	radius  float64
	clock   clock.Clock
	logger  *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(circles CircleAdder, radius float64, c clock.Clock, logger *slog.Logger) *Detector {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{circles: circles, radius: radius, clock: c, logger: logger}
}

// ID is the fix circle id for two lines, independent of their order.
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "fix-" + a + "-" + b
}

// Fixes returns a circle for every crossing between an added line and any
// line from another station, within the length of both lines.
func (d *Detector) Fixes(added, all []core.Line) []core.Circle {
	now := d.clock.Now()
	seen := make(map[string]struct{})
	var out []core.Circle

	for _, a := range added {
		for _, b := range all {
			if a.ID == b.ID || sameStation(a, b) {
				continue
			}
			id := ID(a.ID, b.ID)
			if _, dup := seen[id]; dup {
				continue
			}
			pt, ok := Crossing(a, b)
			if !ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, core.Circle{
				ID:         id,
				Center:     pt,
				Radius:     d.radius,
				Timestamp:  now,
				CallerData: a.CallerData,
			})
		}
	}
	return out
}

// Observe is a store line hook adding fix circles for new crossings.
func (d *Detector) Observe(added, all []core.Line) {
	fixes := d.Fixes(added, all)
	if len(fixes) == 0 {
		return
	}
	if n := d.circles.AddCircles(fixes); n > 0 {
		d.logger.Debug("added bearing fixes", "count", n)
	}
}

// Crossing intersects two bearing lines, reporting ok only when the
// crossing lies within the length of both.
func Crossing(a, b core.Line) (core.Point, bool) {
	pt, da, db, ok := geo.Intersection(a.Start, a.Bearing, b.Start, b.Bearing)
	if !ok {
		return core.Point{}, false
	}
	if da > geo.Distance(a.Start, a.End) || db > geo.Distance(b.Start, b.End) {
		return core.Point{}, false
	}
	return pt, true
}

func sameStation(a, b core.Line) bool {
	if a.Origin != "" && a.Origin == b.Origin {
		return true
	}
	return a.Start == b.Start
}
