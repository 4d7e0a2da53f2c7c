// Package geodesic computes distances and initial bearings between
// Maidenhead locators on the WGS84 ellipsoid.
package geodesic

import (
	"fmt"
	"math"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/maidenhead"
	karney "github.com/tidwall/geodesic"
)

// DistanceBearing is the result of an inverse geodesic solution.
type DistanceBearing struct {
	// Distance in whole meters, truncated.
	Distance int
	// Bearing is the initial azimuth in degrees, normalized to [0, 360).
	Bearing float64
}

// Calculator resolves the distance and bearing between two locators.
type Calculator interface {
	DistanceBearing(from, to string, center bool) (DistanceBearing, error)
}

// Ellipsoid solves the inverse problem on an ellipsoid of revolution.
type Ellipsoid struct {
	model *karney.Ellipsoid
}

// WGS84 is the calculator used for every sink point.
var WGS84 = Ellipsoid{model: karney.WGS84}

// DistanceBearing decodes both locators and returns the geodesic distance and
// the initial bearing from the first to the second.
func (e Ellipsoid) DistanceBearing(from, to string, center bool) (DistanceBearing, error) {
	a, err := maidenhead.Decode(from, center)
	if err != nil {
		return DistanceBearing{}, fmt.Errorf("decode origin: %w", err)
	}
	b, err := maidenhead.Decode(to, center)
	if err != nil {
		return DistanceBearing{}, fmt.Errorf("decode destination: %w", err)
	}

	var s12, azi1 float64
	e.model.Inverse(a.Latitude, a.Longitude, b.Latitude, b.Longitude, &s12, &azi1, nil)

	return DistanceBearing{
		Distance: int(s12),
		Bearing:  normalizeBearing(azi1),
	}, nil
}

// normalizeBearing maps an azimuth in [-180, 180] onto [0, 360).
func normalizeBearing(azimuth float64) float64 {
	if azimuth < 0 {
		azimuth = 360 - math.Abs(azimuth)
	}
	if azimuth >= 360 {
		azimuth -= 360
	}
	return azimuth
}
