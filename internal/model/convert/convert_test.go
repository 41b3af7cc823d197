package convert

import (
	"testing"
	"time"

	"github.com/dfmap/dfmap/internal/model"
	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func TestCoreToCaller_Flat(t *testing.T) {
	rec := core.CallerRecord{
		ID:        "abc",
		Channel:   "16",
		RFF1:      "RFF-1",
		Bearing1:  core.Float(42.5),
		Fix:       core.Placeholder,
		StartTime: "2025-03-01T12:00:00Z",
		StopTime:  core.Placeholder,
	}

	c := CoreToCaller(rec)
	assert.Equal(t, "abc", c.ID)
	assert.Equal(t, "RFF-1", c.RFF1)
	assert.True(t, c.Bearing1.Valid)
	assert.InDelta(t, 42.5, c.Bearing1.Float64, 1e-9)
	assert.Equal(t, datatypes.JSON("[]"), c.Receivers)
	require.True(t, c.StartTime.Valid)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), c.StartTime.Time)
	assert.Equal(t, "2025-03-01T12:00:00Z", c.StartRaw)
}

func TestCoreToCaller_NestedMirrorsFirstReceiver(t *testing.T) {
	rec := core.CallerRecord{
		ID: "n1",
		Receivers: []core.Receiver{
			{RFF: "A", Bearing: core.Float(10)},
			{RFF: "B", Bearing: core.FlexFloat{}},
		},
		StartTime: "not a time",
	}

	c := CoreToCaller(rec)
	assert.Equal(t, "A", c.RFF1)
	assert.InDelta(t, 10, c.Bearing1.Float64, 1e-9)
	assert.False(t, c.StartTime.Valid)
	assert.JSONEq(t, `[{"RFF":"A","bearing":10},{"RFF":"B","bearing":"---"}]`, string(c.Receivers))
}

func TestCallerRoundTrip(t *testing.T) {
	rec := core.CallerRecord{
		ID:        "n2",
		RFF1:      "A",
		Bearing1:  core.Float(10),
		Receivers: []core.Receiver{{RFF: "A", Bearing: core.Float(10)}, {RFF: "B", Bearing: core.Float(200)}},
		StartTime: "2025-03-01T12:00:00Z",
	}

	back := CallerToCore(CoreToCaller(rec))
	assert.Equal(t, rec, back)
}

func TestCallerToCore_BadReceivers(t *testing.T) {
	back := CallerToCore(model.Caller{ID: "x", Receivers: datatypes.JSON("{nope")})
	assert.Nil(t, back.Receivers)
	assert.False(t, back.Bearing1.Valid)
}

func TestApplyUpdate(t *testing.T) {
	c := CoreToCaller(core.CallerRecord{
		ID:        "u1",
		Receivers: []core.Receiver{{RFF: "A", Bearing: core.Float(10)}, {RFF: "B", Bearing: core.Float(20)}},
		StartTime: "2025-03-01T12:00:00Z",
	})

	b := core.Float(99)
	ApplyUpdate(&c, core.SignalUpdate{
		Channel:   strPtr("9"),
		Bearing1:  &b,
		StartTime: strPtr("2025-03-02T08:00:00Z"),
	})

	assert.Equal(t, "9", c.Channel)
	assert.Equal(t, "A", c.RFF1)
	assert.InDelta(t, 99, c.Bearing1.Float64, 1e-9)
	require.True(t, c.StartTime.Valid)
	assert.Equal(t, 2, c.StartTime.Time.Day())

	back := CallerToCore(c)
	require.Len(t, back.Receivers, 2)
	assert.InDelta(t, 99, back.Receivers[0].Bearing.Value, 1e-9)
	assert.Equal(t, "B", back.Receivers[1].RFF)
}

func TestApplyUpdate_FlatOnly(t *testing.T) {
	c := CoreToCaller(core.CallerRecord{ID: "u2", RFF1: "A", Bearing1: core.Float(1)})
	ApplyUpdate(&c, core.SignalUpdate{RFF1: strPtr("C"), Fix: strPtr("fixed")})

	assert.Equal(t, "C", c.RFF1)
	assert.Equal(t, "fixed", c.Fix)
	assert.Equal(t, datatypes.JSON("[]"), c.Receivers)
}

func TestRFFConversions(t *testing.T) {
	site := core.RFFSite{ID: "RFF-1", Name: "Alpha", Lat: 1.5, Lng: -2}
	assert.Equal(t, site, RFFToCore(CoreToRFF(site)))
}
