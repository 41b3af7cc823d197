// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"

	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/pkg/core"
	"gorm.io/datatypes"
)

// receiversFromJSON decodes a stored receiver list. Malformed JSON yields nil.
func receiversFromJSON(data datatypes.JSON) []core.Receiver {
	if len(data) == 0 {
		return nil
	}
	var receivers []core.Receiver
	if err := json.Unmarshal(data, &receivers); err != nil {
		return nil
	}
	if len(receivers) == 0 {
		return nil
	}
	return receivers
}

// CallerToCore converts a GORM Caller to a core.CallerRecord.
func CallerToCore(c model.Caller) core.CallerRecord {
	return core.CallerRecord{
		ID:        c.ID,
		Channel:   c.Channel,
		RFF1:      c.RFF1,
		Bearing1:  core.FlexFloat{Value: c.Bearing1.Float64, Valid: c.Bearing1.Valid},
		Receivers: receiversFromJSON(c.Receivers),
		Fix:       c.Fix,
		StartTime: c.StartRaw,
		StopTime:  c.StopTime,
	}
}

// RFFToCore converts a GORM RFF to a core.RFFSite.
func RFFToCore(r model.RFF) core.RFFSite {
	return core.RFFSite{ID: r.ID, Name: r.Name, Lat: r.Lat, Lng: r.Lng}
}
