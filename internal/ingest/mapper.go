package ingest

import (
	"log/slog"
	"time"

	"github.com/dfmap/dfmap/internal/geo"
	"github.com/dfmap/dfmap/pkg/core"
)

// DefaultLineDistance is the projected length of feed bearing lines, in meters.
const DefaultLineDistance = 100000.0

// RFFResolver resolves a receiver station by name or description.
type RFFResolver interface {
	RFF(name string) (core.Marker, bool)
}

// Mapper turns caller records into bearing lines.
type Mapper struct {
	RFFs     RFFResolver
	Distance float64
	Logger   *slog.Logger
}

// Lines maps one record to a line per resolvable receiver, stamped with now.
// A record with a single receiver yields a line whose id is the record id;
// records with several receivers use record-id:RFF so each receiver gets
// its own line. Receivers with an unknown station or no bearing are skipped.
func (m Mapper) Lines(rec core.CallerRecord, now time.Time) []core.Line {
	receivers := rec.Bearings()
	if len(receivers) == 0 {
		m.debug("record has no receivers", "record", rec.ID)
		return nil
	}

	record := rec
	var out []core.Line
	for _, r := range receivers {
		if !r.Bearing.Valid {
			m.debug("receiver has no bearing", "record", rec.ID, "rff", r.RFF)
			continue
		}
		rff, ok := m.RFFs.RFF(r.RFF)
		if !ok {
			m.debug("no RFF matches receiver", "record", rec.ID, "rff", r.RFF)
			continue
		}

		id := rec.ID
		if len(receivers) > 1 {
			id = rec.ID + ":" + r.RFF
		}
		out = append(out, core.Line{
			ID:         id,
			Start:      rff.LatLng,
			End:        geo.Destination(rff.LatLng, r.Bearing.Value, m.distance()),
			Bearing:    r.Bearing.Value,
			Origin:     rff.Label(),
			Timestamp:  now,
			CallerData: &record,
		})
	}
	return out
}

func (m Mapper) distance() float64 {
	if m.Distance > 0 {
		return m.Distance
	}
	return DefaultLineDistance
}

func (m Mapper) debug(msg string, args ...any) {
	if m.Logger != nil {
		m.Logger.Debug(msg, args...)
	}
}
