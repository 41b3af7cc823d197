// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/pkg/core"
	"gorm.io/datatypes"
)

// receiversToJSON converts a receiver list to datatypes.JSON for DB storage.
func receiversToJSON(receivers []core.Receiver) datatypes.JSON {
	if len(receivers) == 0 {
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(receivers)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

func nullFloat(f core.FlexFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.Value, Valid: f.Valid}
}

func nullTime(rec core.CallerRecord) sql.NullTime {
	t, ok := rec.Started()
	if !ok {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CoreToCaller converts a core.CallerRecord to a GORM model.Caller.
// A nested record without a flat pair gets its first receiver mirrored into
// RFF1/Bearing1.
func CoreToCaller(rec core.CallerRecord) model.Caller {
	if rec.RFF1 == "" && len(rec.Receivers) > 0 {
		rec.RFF1 = rec.Receivers[0].RFF
		rec.Bearing1 = rec.Receivers[0].Bearing
	}
	return model.Caller{
		ID:        rec.ID,
		Channel:   rec.Channel,
		RFF1:      rec.RFF1,
		Bearing1:  nullFloat(rec.Bearing1),
		Receivers: receiversToJSON(rec.Receivers),
		Fix:       rec.Fix,
		StartRaw:  rec.StartTime,
		StartTime: nullTime(rec),
		StopTime:  rec.StopTime,
	}
}

// CoreToRFF converts a core.RFFSite to a GORM model.RFF.
func CoreToRFF(s core.RFFSite) model.RFF {
	return model.RFF{ID: s.ID, Name: s.Name, Lat: s.Lat, Lng: s.Lng}
}

// ApplyUpdate merges a partial update into c. The first nested receiver
// follows edits of the flat pair.
func ApplyUpdate(c *model.Caller, u core.SignalUpdate) {
	if u.Channel != nil {
		c.Channel = *u.Channel
	}
	if u.Fix != nil {
		c.Fix = *u.Fix
	}
	if u.StopTime != nil {
		c.StopTime = *u.StopTime
	}
	if u.StartTime != nil {
		c.StartRaw = *u.StartTime
		c.StartTime = nullTime(core.CallerRecord{StartTime: *u.StartTime})
	}
	if u.RFF1 == nil && u.Bearing1 == nil {
		return
	}
	if u.RFF1 != nil {
		c.RFF1 = *u.RFF1
	}
	if u.Bearing1 != nil {
		c.Bearing1 = nullFloat(*u.Bearing1)
	}
	receivers := receiversFromJSON(c.Receivers)
	if len(receivers) > 0 {
		receivers[0] = core.Receiver{
			RFF:     c.RFF1,
			Bearing: core.FlexFloat{Value: c.Bearing1.Float64, Valid: c.Bearing1.Valid},
		}
		c.Receivers = receiversToJSON(receivers)
	}
}
