// pkg/core/types.go
package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Edge is one segment of an area outline.
type Edge [2]Point

// MarkerType is the closed set of marker kinds.
type MarkerType int

const (
	MarkerRFF MarkerType = iota
	MarkerSignal
	MarkerBoat
	MarkerPlacemark
)

var markerTypeNames = [...]string{
	MarkerRFF:       "RFF",
	MarkerSignal:    "Signal",
	MarkerBoat:      "Boat",
	MarkerPlacemark: "Placemark",
}

func (t MarkerType) String() string {
	if t < 0 || int(t) >= len(markerTypeNames) {
		return fmt.Sprintf("MarkerType(%d)", int(t))
	}
	return markerTypeNames[t]
}

// ParseMarkerType maps a tag such as "RFF" or "signal" to a MarkerType.
func ParseMarkerType(s string) (MarkerType, error) {
	for i, name := range markerTypeNames {
		if strings.EqualFold(name, s) {
			return MarkerType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown marker type %q", s)
}

func (t MarkerType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MarkerType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMarkerType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Mode is the pointer interaction mode selected in the UI.
type Mode string

const (
	ModeDragging  Mode = "dragging"
	ModeRFF       Mode = "RFF"
	ModeSignal    Mode = "Signal"
	ModeBoat      Mode = "Boat"
	ModePlacemark Mode = "Placemark"
	ModeLines     Mode = "lines"
	ModeCircles   Mode = "circles"
	ModeArea      Mode = "area"
)

// Modes lists every valid interaction mode.
var Modes = []Mode{
	ModeDragging, ModeRFF, ModeSignal, ModeBoat, ModePlacemark,
	ModeLines, ModeCircles, ModeArea,
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// MarkerType returns the marker kind placed by a marker mode.
func (m Mode) MarkerType() (MarkerType, bool) {
	switch m {
	case ModeRFF:
		return MarkerRFF, true
	case ModeSignal:
		return MarkerSignal, true
	case ModeBoat:
		return MarkerBoat, true
	case ModePlacemark:
		return MarkerPlacemark, true
	}
	return 0, false
}
