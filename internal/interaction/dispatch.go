package interaction

import (
	"fmt"

	"github.com/dfmap/dfmap/internal/area"
	"github.com/dfmap/dfmap/internal/dispatcher"
	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
)

// RegisterHandlers registers one click handler per mode plus the context
// menu and move handlers.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.ClickCommand(core.ModeDragging), m.handleSelect, dispatcher.Logged())

	for _, mode := range []core.Mode{core.ModeRFF, core.ModeSignal, core.ModeBoat, core.ModePlacemark} {
		d.Register(dispatcher.ClickCommand(mode), m.handlePlaceMarker, dispatcher.Logged())
	}

	d.Register(dispatcher.ClickCommand(core.ModeLines), m.handleLines, dispatcher.Logged())
	d.Register(dispatcher.ClickCommand(core.ModeCircles), m.handleCircle, dispatcher.Logged())
	d.Register(dispatcher.ClickCommand(core.ModeArea), m.handleAreaVertex, dispatcher.Logged())
	d.Register(dispatcher.CommandContextMenu, m.handleContextMenu, dispatcher.Logged())

	// cursor updates are high volume and may be dropped
	d.Register(dispatcher.CommandMove, m.handleMove, dispatcher.Async(256))
}

func (m *Manager) record(e dispatcher.Event) {
	p := e.Pointer
	m.deps.Store.RecordClick(p.ScreenX, p.ScreenY, p.Lat, p.Lng)
}

func (m *Manager) handleSelect(e dispatcher.Event) (any, error) {
	m.record(e)
	marker, ok := m.deps.Store.SelectMarkerAt(e.Pointer.LatLng())
	if !ok {
		return nil, nil
	}
	m.deps.Store.ShowPopup(core.PopupInspect)
	return marker, nil
}

func (m *Manager) handlePlaceMarker(e dispatcher.Event) (any, error) {
	mode := m.deps.Session.Mode()
	typ, ok := mode.MarkerType()
	if !ok {
		return nil, fmt.Errorf("mode %s does not place markers", mode)
	}
	m.record(e)
	return m.deps.Store.AddMarker(e.Pointer.LatLng(), typ, ""), nil
}

// handleLines draws a line from every RFF towards the clicked point.
func (m *Manager) handleLines(e dispatcher.Event) (any, error) {
	m.record(e)
	target := e.Pointer.LatLng()
	now := m.deps.Clock.Now()

	rffs := m.deps.Store.RFFs()
	if len(rffs) == 0 {
		m.deps.Logger.Debug("no RFF to draw lines from")
		return nil, nil
	}

	lines := make([]core.Line, 0, len(rffs))
	for _, rff := range rffs {
		bearing := geo.BearingTo(rff.LatLng, target)
		lines = append(lines, core.Line{
			ID:        fmt.Sprintf("line-%s-%d", rff.ID, now.UnixMilli()),
			Start:     rff.LatLng,
			End:       geo.Destination(rff.LatLng, bearing, m.deps.ManualLineDistance),
			Bearing:   bearing,
			Origin:    rff.Label(),
			Timestamp: now,
		})
	}
	return m.deps.Store.InsertLines(lines), nil
}

func (m *Manager) handleCircle(e dispatcher.Event) (any, error) {
	m.record(e)
	return m.deps.Store.AddCircle(e.Pointer.LatLng(), m.deps.CircleRadius, nil), nil
}

func (m *Manager) handleAreaVertex(e dispatcher.Event) (any, error) {
	m.record(e)
	p := e.Pointer
	a, done := m.deps.Drafter.Click(area.Vertex{ScreenX: p.ScreenX, ScreenY: p.ScreenY, Point: p.LatLng()})
	if !done {
		return nil, nil
	}
	m.deps.Logger.Info("area committed", "area", a.ID, "edges", len(a.Edges))
	m.deps.Session.SetMode(core.ModeDragging)
	return a, nil
}

func (m *Manager) handleContextMenu(e dispatcher.Event) (any, error) {
	m.record(e)
	marker, ok := m.deps.Store.SelectMarkerAt(e.Pointer.LatLng())
	m.deps.Store.ShowPopup(core.PopupContextMenu)
	if !ok {
		return nil, nil
	}
	return marker, nil
}

func (m *Manager) handleMove(e dispatcher.Event) (any, error) {
	m.deps.Store.SetCursor(e.Pointer.LatLng())
	return nil, nil
}
