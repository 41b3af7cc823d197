// pkg/core/interaction.go
package core

// Button identifies which pointer action produced an event.
type Button string

const (
	ButtonLeft  Button = "left"
	ButtonRight Button = "right"
	ButtonMove  Button = "move"
)

// PointerEvent is forwarded by the rendering layer for every click or move.
type PointerEvent struct {
	Button  Button  `json:"button"`
	ScreenX float64 `json:"x"`
	ScreenY float64 `json:"y"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// LatLng returns the map position of the event.
func (e PointerEvent) LatLng() Point {
	return Point{Lat: e.Lat, Lng: e.Lng}
}

// ClickState is the last pointer interaction, used to anchor popups.
type ClickState struct {
	ScreenX float64 `json:"x"`
	ScreenY float64 `json:"y"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// PopupKind selects which transient popup the UI shows.
type PopupKind string

const (
	PopupNone        PopupKind = ""
	PopupInspect     PopupKind = "inspect"
	PopupEdit        PopupKind = "edit"
	PopupContextMenu PopupKind = "contextmenu"
)

// Valid reports whether k is a known popup kind.
func (k PopupKind) Valid() bool {
	switch k {
	case PopupNone, PopupInspect, PopupEdit, PopupContextMenu:
		return true
	}
	return false
}

// EntityKind names the collection a selection points into.
type EntityKind string

const (
	EntityMarker EntityKind = "marker"
	EntityLine   EntityKind = "line"
	EntityCircle EntityKind = "circle"
	EntityArea   EntityKind = "area"
)

// Selection references the entity implicated by the last inspect or
// context-menu action. The referenced entity may have since been removed.
type Selection struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}
