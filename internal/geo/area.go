package geo

import (
	"fmt"

	"github.com/dfmap/dfmap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// AreaPolygon builds a lon/lat polygon from a committed area outline.
// The ring is closed automatically.
func AreaPolygon(a core.Area) (geom.Polygon, error) {
	return ringPolygon(a, func(p core.Point) (float64, float64) { return p.Lng, p.Lat })
}

// AreaPolygon3857 builds the same polygon projected into EPSG:3857, where
// planar predicates are a reasonable approximation at map scale.
func AreaPolygon3857(a core.Area) (geom.Polygon, error) {
	return ringPolygon(a, ToWebMercator)
}

func ringPolygon(a core.Area, project func(core.Point) (float64, float64)) (geom.Polygon, error) {
	vertices := a.Vertices()
	if len(vertices) < 3 {
		return geom.Polygon{}, fmt.Errorf("area must have at least 3 vertices, got %d", len(vertices))
	}

	flatCoords := make([]float64, 0, (len(vertices)+1)*2)
	for _, v := range vertices {
		x, y := project(v)
		flatCoords = append(flatCoords, x, y)
	}
	x, y := project(vertices[0])
	flatCoords = append(flatCoords, x, y)

	ring := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("invalid area outline: %w", err)
	}
	return poly, nil
}

// PolygonContains tests a WGS84 point against a polygon built by AreaPolygon3857.
func PolygonContains(poly geom.Polygon, p core.Point) bool {
	x, y := ToWebMercator(p)
	pt := geom.XY{X: x, Y: y}.AsPoint()
	return geom.Intersects(poly.AsGeometry(), pt.AsGeometry())
}

// AreaWKT renders an area as lon/lat WKT.
func AreaWKT(a core.Area) (string, error) {
	poly, err := AreaPolygon(a)
	if err != nil {
		return "", err
	}
	return poly.AsText(), nil
}
