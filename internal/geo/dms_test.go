package geo

import (
	"testing"

	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDMS(t *testing.T) {
	lat, lng := FormatDMS(core.Point{Lat: 37.1794, Lng: -122.5})
	assert.Equal(t, `37° 10' 45" N`, lat)
	assert.Equal(t, `122° 30' 00" W`, lng)

	lat, lng = FormatDMS(core.Point{Lat: -33.25, Lng: 151.75})
	assert.Equal(t, `33° 15' 00" S`, lat)
	assert.Equal(t, `151° 45' 00" E`, lng)
}

func TestParseDMS(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{`37° 10' 45" N`, 37 + 10.0/60 + 45.0/3600},
		{`122° 30' W`, -122.5},
		{`33 15 S`, -33.25},
		{`-45`, -45},
		{`151° 45' 00" E`, 151.75},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDMS(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestParseDMS_Invalid(t *testing.T) {
	_, err := ParseDMS("north")
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestParseCoordinate(t *testing.T) {
	v, err := ParseCoordinate(" -33.5 ")
	require.NoError(t, err)
	assert.Equal(t, -33.5, v)

	v, err = ParseCoordinate(`33° 30' S`)
	require.NoError(t, err)
	assert.InDelta(t, -33.5, v, 1e-9)

	_, err = ParseCoordinate("")
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestFormatParse_RoundTrip(t *testing.T) {
	p := core.Point{Lat: 51.5, Lng: -0.125}
	lat, lng := FormatDMS(p)

	gotLat, err := ParseDMS(lat)
	require.NoError(t, err)
	gotLng, err := ParseDMS(lng)
	require.NoError(t, err)

	assert.InDelta(t, p.Lat, gotLat, 1.0/3600)
	assert.InDelta(t, p.Lng, gotLng, 1.0/3600)
}
