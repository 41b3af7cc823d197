package feed

import (
	"net/http"
	"slices"
	"time"

	"github.com/dfmap/dfmap/internal/store"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/dfmap/dfmap/internal/geo"
	geojson "github.com/paulmach/go.geojson"
)

func lngLat(p core.Point) []float64 {
	return []float64{p.Lng, p.Lat}
}

// FeatureCollection renders the drawable entities of a snapshot as GeoJSON.
// Circles become points carrying a radius property since GeoJSON has no
// circle geometry. Areas with fewer than three vertices are skipped; the
// others carry their outline as WKT. Markers carry a DMS rendering of
// their position.
func FeatureCollection(snap store.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, m := range snap.Markers {
		f := geojson.NewPointFeature(lngLat(m.LatLng))
		f.ID = m.ID
		f.SetProperty("entity", "marker")
		f.SetProperty("type", m.Type.String())
		f.SetProperty("name", m.Name)
		f.SetProperty("description", m.Description)
		dmsLat, dmsLng := geo.FormatDMS(m.LatLng)
		f.SetProperty("dms", dmsLat+" "+dmsLng)
		if !m.PingTime.IsZero() {
			f.SetProperty("pingTime", m.PingTime.UTC().Format(time.RFC3339))
		}
		fc.AddFeature(f)
	}

	for _, l := range snap.Lines {
		f := geojson.NewLineStringFeature([][]float64{lngLat(l.Start), lngLat(l.End)})
		f.ID = l.ID
		f.SetProperty("entity", "line")
		f.SetProperty("bearing", l.Bearing)
		f.SetProperty("origin", l.Origin)
		f.SetProperty("permanent", slices.Contains(snap.PermanentLines, l.ID))
		fc.AddFeature(f)
	}

	for _, c := range snap.Circles {
		f := geojson.NewPointFeature(lngLat(c.Center))
		f.ID = c.ID
		f.SetProperty("entity", "circle")
		f.SetProperty("radius", c.Radius)
		f.SetProperty("permanent", slices.Contains(snap.PermanentCircles, c.ID))
		fc.AddFeature(f)
	}

	for _, a := range snap.Areas {
		vertices := a.Vertices()
		if len(vertices) < 3 {
			continue
		}
		ring := make([][]float64, 0, len(vertices)+1)
		for _, v := range vertices {
			ring = append(ring, lngLat(v))
		}
		ring = append(ring, lngLat(vertices[0]))

		f := geojson.NewPolygonFeature([][][]float64{ring})
		f.ID = a.ID
		f.SetProperty("entity", "area")
		if wkt, err := geo.AreaWKT(a); err == nil {
			f.SetProperty("wkt", wkt)
		}
		fc.AddFeature(f)
	}

	return fc
}

func (h *Hub) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := FeatureCollection(h.ctrl.Snapshot()).MarshalJSON()
	if err != nil {
		h.logger.Error("failed to encode geojson", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}
