// Package solar computes the sun's elevation so camera-status detection
// can tell a dark nighttime frame from a camera that went dark in daylight.
package solar

import (
	"math"
	"time"
)

// Civil sunrise/sunset happens with the sun's center 0.833 degrees below
// the horizon (refraction plus solar radius).
const horizonElevation = -0.833

// IsDaylight reports whether the sun is up at the given coordinates.
func IsDaylight(latitude, longitude float64, t time.Time) bool {
	return Elevation(latitude, longitude, t) > horizonElevation
}

// Elevation returns the solar elevation angle in degrees at time t.
// Low-precision NOAA formulation; accurate to a fraction of a degree,
// which is plenty for day/night classification.
func Elevation(latitude, longitude float64, t time.Time) float64 {
	// Days since J2000.0 epoch.
	d := float64(t.UTC().Unix())/86400.0 - 10957.5

	rad := math.Pi / 180.0

	// Mean anomaly and mean longitude of the sun (degrees).
	g := math.Mod(357.529+0.98560028*d, 360)
	q := math.Mod(280.459+0.98564736*d, 360)

	// Apparent ecliptic longitude.
	l := q + 1.915*math.Sin(g*rad) + 0.020*math.Sin(2*g*rad)

	// Obliquity of the ecliptic.
	e := 23.439 - 0.00000036*d

	// Right ascension (degrees) and declination.
	ra := math.Atan2(math.Cos(e*rad)*math.Sin(l*rad), math.Cos(l*rad)) / rad
	decl := math.Asin(math.Sin(e*rad) * math.Sin(l*rad))

	// Greenwich mean sidereal time (hours), then local hour angle.
	gmst := math.Mod(18.697374558+24.06570982441908*d, 24)
	ha := (gmst*15 + longitude) - ra

	sinElev := math.Sin(latitude*rad)*math.Sin(decl) +
		math.Cos(latitude*rad)*math.Cos(decl)*math.Cos(ha*rad)
	return math.Asin(sinElev) / rad
}
