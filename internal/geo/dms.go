package geo

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dfmap/dfmap/pkg/core"
)

var dmsNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// FormatDMS renders a point as degrees/minutes/seconds strings,
// e.g. `37° 10' 45" N` and `122° 30' 00" W`.
func FormatDMS(p core.Point) (lat, lng string) {
	return formatAxis(p.Lat, "N", "S"), formatAxis(p.Lng, "E", "W")
}

func formatAxis(v float64, pos, neg string) string {
	dir := pos
	if v < 0 {
		dir = neg
		v = -v
	}
	deg := math.Trunc(v)
	mins := math.Trunc((v - deg) * 60)
	secs := math.Trunc(((v-deg)*60 - mins) * 60)
	return fmt.Sprintf("%d° %02d' %02d\" %s", int(deg), int(mins), int(secs), dir)
}

// ParseDMS parses a degrees[/minutes[/seconds]] string with an optional
// hemisphere letter. S and W yield negative values.
func ParseDMS(s string) (float64, error) {
	nums := dmsNumber.FindAllString(s, 3)
	if len(nums) == 0 {
		return 0, ErrInvalidCoordinates
	}
	parts := make([]float64, 3)
	for i, n := range nums {
		v, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, ErrInvalidCoordinates
		}
		parts[i] = v
	}
	value := parts[0] + parts[1]/60 + parts[2]/3600

	upper := strings.ToUpper(s)
	if strings.ContainsAny(upper, "SW") || strings.HasPrefix(strings.TrimSpace(s), "-") {
		value = -value
	}
	return value, nil
}

// ParseCoordinate accepts either a decimal degree string or a DMS string.
func ParseCoordinate(s string) (float64, error) {
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return v, nil
	}
	return ParseDMS(s)
}
