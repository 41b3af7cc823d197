// Package interaction turns pointer events and UI commands into store
// mutations according to the active interaction mode.
package interaction

import (
	"fmt"
	"log/slog"

	"github.com/dfmap/dfmap/internal/area"
	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/dispatcher"
	"github.com/dfmap/dfmap/internal/session"
	"github.com/dfmap/dfmap/internal/store"
	"github.com/dfmap/dfmap/pkg/core"
)

const (
	// DefaultManualLineDistance is the length of lines drawn in lines mode, in meters.
	DefaultManualLineDistance = 20000.0
	// DefaultCircleRadius is the radius of circles placed in circles mode, in meters.
	DefaultCircleRadius = 200.0
)

// SignalSync forwards signal edits and deletions to the signal backend.
// Calls must not block.
type SignalSync interface {
	SignalUpdated(id string, u core.SignalUpdate)
	SignalDeleted(id string)
}

// Dependencies holds all dependencies for the Manager
type Dependencies struct {
	Store      *store.Store
	Session    *session.Context
	Drafter    *area.Drafter
	Dispatcher *dispatcher.Dispatcher
	Signals    SignalSync
	Clock      clock.Clock
	Logger     *slog.Logger

	ManualLineDistance float64
	CircleRadius       float64
}

// Manager handles user interaction.
type Manager struct {
	deps Dependencies
}

// NewManager creates a Manager and resets the area draft on every mode change.
func NewManager(deps Dependencies) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ManualLineDistance <= 0 {
		deps.ManualLineDistance = DefaultManualLineDistance
	}
	if deps.CircleRadius <= 0 {
		deps.CircleRadius = DefaultCircleRadius
	}

	m := &Manager{deps: deps}
	deps.Session.OnModeChange(func(prev, next core.Mode) {
		if deps.Drafter.Drawing() {
			deps.Logger.Debug("discarding area draft", "from", prev, "to", next)
		}
		deps.Drafter.Reset()
	})
	return m
}

// Pointer routes a pointer event through the dispatcher under the current mode.
func (m *Manager) Pointer(e core.PointerEvent) (any, error) {
	return m.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   dispatcher.CommandFor(e, m.deps.Session.Mode()),
		Pointer:   e,
		Timestamp: m.deps.Clock.Now(),
	})
}

// SetMode switches the interaction mode.
func (m *Manager) SetMode(mode core.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	m.deps.Session.SetMode(mode)
	return nil
}

// DeleteMarker removes a marker; deleted signals are also removed from the backend.
func (m *Manager) DeleteMarker(id string) bool {
	removed, ok := m.deps.Store.DeleteMarker(id)
	if !ok {
		m.deps.Logger.Debug("delete of unknown marker", "marker", id)
		return false
	}
	if removed.Type == core.MarkerSignal && m.deps.Signals != nil {
		m.deps.Signals.SignalDeleted(removed.ID)
	}
	return true
}

// UpdateSignal forwards a partial signal update to the backend.
func (m *Manager) UpdateSignal(id string, u core.SignalUpdate) error {
	if u.Empty() {
		return fmt.Errorf("empty update for signal %s", id)
	}
	if m.deps.Signals != nil {
		m.deps.Signals.SignalUpdated(id, u)
	}
	return nil
}

// TogglePermanence flips the permanence of a line or circle.
func (m *Manager) TogglePermanence(kind core.EntityKind, id string) (bool, error) {
	switch kind {
	case core.EntityLine:
		return m.deps.Store.ToggleLinePermanence(id), nil
	case core.EntityCircle:
		return m.deps.Store.ToggleCirclePermanence(id), nil
	}
	return false, fmt.Errorf("permanence does not apply to %q", kind)
}

// ShowPopup opens a popup anchored at the last click.
func (m *Manager) ShowPopup(kind core.PopupKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown popup %q", kind)
	}
	m.deps.Store.ShowPopup(kind)
	return nil
}

// SelectArea selects a committed area and returns the markers inside it.
func (m *Manager) SelectArea(id string) ([]core.Marker, error) {
	markers, err := m.deps.Store.MarkersInArea(id)
	if err != nil {
		return nil, err
	}
	m.deps.Store.Select(core.EntityArea, id)
	return markers, nil
}
