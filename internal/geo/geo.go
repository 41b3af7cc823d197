// Package geo implements the spherical great-circle math used for bearing
// lines, plus coordinate parsing and projection helpers.
package geo

import (
	"errors"
	"math"

	"github.com/dfmap/dfmap/pkg/core"
	"github.com/wroge/wgs84"
)

// EarthRadius is the mean Earth radius in meters used by every calculation here.
const EarthRadius = 6371e3

// ErrInvalidCoordinates is returned when coordinates cannot be parsed
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// normalizeLng maps a longitude in degrees into (-180, 180].
func normalizeLng(lng float64) float64 {
	lng = math.Mod(lng+540, 360) - 180
	if lng == -180 {
		return 180
	}
	return lng
}

// Bearing returns the initial great-circle bearing from one point to
// another, in degrees within [0, 360).
func Bearing(fromLat, fromLng, toLat, toLng float64) float64 {
	φ1, φ2 := toRad(fromLat), toRad(toLat)
	Δλ := toRad(toLng - fromLng)

	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	θ := math.Atan2(y, x)

	return math.Mod(toDeg(θ)+360, 360)
}

// BearingTo is Bearing for two points.
func BearingTo(from, to core.Point) float64 {
	return Bearing(from.Lat, from.Lng, to.Lat, to.Lng)
}

// Destination solves the direct problem on a sphere: the point reached by
// travelling distance meters from origin along the given initial bearing.
func Destination(origin core.Point, bearing, distance float64) core.Point {
	δ := distance / EarthRadius
	θ := toRad(bearing)
	φ1 := toRad(origin.Lat)
	λ1 := toRad(origin.Lng)

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(
		math.Sin(θ)*math.Sin(δ)*math.Cos(φ1),
		math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2),
	)

	return core.Point{Lat: toDeg(φ2), Lng: normalizeLng(toDeg(λ2))}
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b core.Point) float64 {
	φ1, φ2 := toRad(a.Lat), toRad(b.Lat)
	Δφ := φ2 - φ1
	Δλ := toRad(b.Lng - a.Lng)

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// Intersection returns where the great-circle paths leaving p1 on bearing1
// and p2 on bearing2 cross, together with the distance in meters from each
// origin. ok is false for coincident origins, parallel paths, or paths that
// only meet behind one of the origins.
func Intersection(p1 core.Point, bearing1 float64, p2 core.Point, bearing2 float64) (pt core.Point, d1, d2 float64, ok bool) {
	φ1, λ1 := toRad(p1.Lat), toRad(p1.Lng)
	φ2, λ2 := toRad(p2.Lat), toRad(p2.Lng)
	θ13, θ23 := toRad(bearing1), toRad(bearing2)
	Δφ, Δλ := φ2-φ1, λ2-λ1

	δ12 := 2 * math.Asin(math.Sqrt(
		math.Sin(Δφ/2)*math.Sin(Δφ/2)+math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2),
	))
	if math.Abs(δ12) < 1e-12 {
		return core.Point{}, 0, 0, false
	}

	θa := math.Acos(clamp((math.Sin(φ2) - math.Sin(φ1)*math.Cos(δ12)) / (math.Sin(δ12) * math.Cos(φ1))))
	θb := math.Acos(clamp((math.Sin(φ1) - math.Sin(φ2)*math.Cos(δ12)) / (math.Sin(δ12) * math.Cos(φ2))))

	var θ12, θ21 float64
	if math.Sin(λ2-λ1) > 0 {
		θ12, θ21 = θa, 2*math.Pi-θb
	} else {
		θ12, θ21 = 2*math.Pi-θa, θb
	}

	α1 := θ13 - θ12
	α2 := θ21 - θ23
	if math.Abs(math.Sin(α1)) < 1e-12 && math.Abs(math.Sin(α2)) < 1e-12 {
		return core.Point{}, 0, 0, false
	}
	if math.Sin(α1)*math.Sin(α2) < 0 {
		return core.Point{}, 0, 0, false
	}

	cosα3 := -math.Cos(α1)*math.Cos(α2) + math.Sin(α1)*math.Sin(α2)*math.Cos(δ12)
	δ13 := math.Atan2(math.Sin(δ12)*math.Sin(α1)*math.Sin(α2), math.Cos(α2)+math.Cos(α1)*cosα3)

	φ3 := math.Asin(clamp(math.Sin(φ1)*math.Cos(δ13) + math.Cos(φ1)*math.Sin(δ13)*math.Cos(θ13)))
	Δλ13 := math.Atan2(math.Sin(θ13)*math.Sin(δ13)*math.Cos(φ1), math.Cos(δ13)-math.Sin(φ1)*math.Sin(φ3))

	pt = core.Point{Lat: toDeg(φ3), Lng: normalizeLng(toDeg(λ1 + Δλ13))}
	return pt, δ13 * EarthRadius, Distance(p2, pt), true
}

// ToWebMercator projects a WGS84 point into EPSG:3857 meters.
func ToWebMercator(p core.Point) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(p.Lng, p.Lat, 0)
	return x, y
}
