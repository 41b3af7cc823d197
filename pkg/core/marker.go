// pkg/core/marker.go
package core

import "time"

// Marker is a point annotation on the map.
// Only RFF markers can be the origin of a bearing line.
type Marker struct {
	ID          string     `json:"id"`
	LatLng      Point      `json:"latlng"`
	Type        MarkerType `json:"type"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description"`
	PingTime    time.Time  `json:"pingTime"`
	Bearing1    *float64   `json:"bearing1,omitempty"`
	RFF1        string     `json:"rff1,omitempty"`
}

// Label is the name used to match feed records against an RFF.
func (m Marker) Label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Description
}

// Line is a bearing line from Start towards End.
type Line struct {
	ID         string        `json:"id"`
	Start      Point         `json:"start"`
	End        Point         `json:"end"`
	Bearing    float64       `json:"bearing"`
	Origin     string        `json:"origin,omitempty"` // RFF name the line was drawn from
	Timestamp  time.Time     `json:"timestamp"`
	CallerData *CallerRecord `json:"callerData,omitempty"`
}

// Circle is a radius annotation, also used for bearing fixes.
type Circle struct {
	ID         string        `json:"id"`
	Center     Point         `json:"center"`
	Radius     float64       `json:"radius"` // meters
	Timestamp  time.Time     `json:"timestamp"`
	CallerData *CallerRecord `json:"callerData,omitempty"`
}

// Area is a closed polygon drawn by the user.
type Area struct {
	ID        string    `json:"id"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"createdAt"`
}

// Vertices returns the outline vertices in drawing order, without the
// repeated closing vertex.
func (a Area) Vertices() []Point {
	out := make([]Point, 0, len(a.Edges))
	for _, e := range a.Edges {
		out = append(out, e[0])
	}
	return out
}
