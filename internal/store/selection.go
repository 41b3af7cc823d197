package store

import "github.com/dfmap/dfmap/pkg/core"

// RecordClick stores the last pointer position and closes any open popup.
func (s *Store) RecordClick(screenX, screenY, lat, lng float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.click = core.ClickState{ScreenX: screenX, ScreenY: screenY, Lat: lat, Lng: lng}
	s.popup = core.PopupNone
	s.version++
}

// Click returns the last recorded click.
func (s *Store) Click() core.ClickState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.click
}

// SelectMarkerAt selects the first marker whose coordinates equal point
// exactly, or clears the selection when none does.
func (s *Store) SelectMarkerAt(point core.Point) (core.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	for _, m := range s.markers {
		if m.LatLng.Lat == point.Lat && m.LatLng.Lng == point.Lng {
			s.selection = &core.Selection{Kind: core.EntityMarker, ID: m.ID}
			return m, true
		}
	}
	s.selection = nil
	return core.Marker{}, false
}

// Select points the selection at an entity. The entity is not required to exist.
func (s *Store) Select(kind core.EntityKind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = &core.Selection{Kind: kind, ID: id}
	s.version++
}

// ClearSelection drops the current selection.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = nil
	s.version++
}

// Selection returns the current selection, if any.
func (s *Store) Selection() (core.Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return core.Selection{}, false
	}
	return *s.selection, true
}

// ShowPopup opens the given popup, replacing any other.
func (s *Store) ShowPopup(kind core.PopupKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.popup = kind
	s.version++
}

// ClearPopup closes the active popup.
func (s *Store) ClearPopup() {
	s.ShowPopup(core.PopupNone)
}

// Popup returns the active popup kind.
func (s *Store) Popup() core.PopupKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.popup
}

// SetCursor records the pointer position from move events.
func (s *Store) SetCursor(p core.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &p
	s.version++
}
