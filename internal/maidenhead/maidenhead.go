// Package maidenhead converts Maidenhead grid locators to and from decimal
// degrees.
//
// A locator is a sequence of character pairs, each pair refining the cell
// described by the previous ones. The first character of a pair encodes
// longitude, the second latitude:
//
//	pair  alphabet  longitude  latitude
//	1     A-R       20°        10°
//	2     0-9       2°         1°
//	3     A-X       5′         2.5′
//	4     0-9       30″        15″
//	5     A-X       1.25″      0.625″
//	6     0-9       0.125″     0.0625″
package maidenhead

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidLocator is returned for malformed locators and for coordinates
// that cannot be encoded.
var ErrInvalidLocator = errors.New("invalid maidenhead locator")

// MaxPairs is the longest locator, in pairs, the codec understands.
const MaxPairs = 6

// DecimalDegrees is a WGS84 position.
type DecimalDegrees struct {
	Latitude  float64
	Longitude float64
}

// pair describes one level of the locator hierarchy. Values are expressed in
// units small enough that every cell center of the finest pair is integral.
type pair struct {
	position string
	min      byte
	max      byte
	value    int64
}

var pairs = [MaxPairs]pair{
	{"field", 'A', 'R', 10 * 24 * 10 * 24 * 10 * 2},
	{"square", '0', '9', 24 * 10 * 24 * 10 * 2},
	{"subsquare", 'A', 'X', 10 * 24 * 10 * 2},
	{"extended square", '0', '9', 24 * 10 * 2},
	{"fifth", 'A', 'X', 10 * 2},
	{"sixth", '0', '9', 2},
}

// units spans the full 360° of longitude (and 180° of latitude).
const units = 18 * 10 * 24 * 10 * 24 * 10 * 2

// Decode returns the position of locator. With center set, the position is
// the middle of the smallest cell the locator names; otherwise it is the
// cell's southwest corner. Letters are accepted in either case.
func Decode(locator string, center bool) (DecimalDegrees, error) {
	ilon, ilat, err := decodeUnits(locator, center)
	if err != nil {
		return DecimalDegrees{}, err
	}

	dd := DecimalDegrees{
		Latitude:  float64(ilat)/units*180 - 90,
		Longitude: float64(ilon)/units*360 - 180,
	}
	if dd.Latitude < -90 || dd.Latitude > 90 || dd.Longitude < -180 || dd.Longitude > 180 {
		return DecimalDegrees{}, fmt.Errorf("%w: %q decodes outside the globe", ErrInvalidLocator, locator)
	}
	return dd, nil
}

// Valid reports whether locator can be decoded.
func Valid(locator string) bool {
	_, _, err := decodeUnits(locator, false)
	return err == nil
}

func decodeUnits(locator string, center bool) (ilon, ilat int64, err error) {
	n := len(locator) / 2
	if len(locator)%2 != 0 || n < 1 || n > MaxPairs {
		return 0, 0, fmt.Errorf("%w: %q must be 1 to %d pairs of characters", ErrInvalidLocator, locator, MaxPairs)
	}

	for i := 0; i < n; i++ {
		p := pairs[i]
		lo, la := upperASCII(locator[2*i]), upperASCII(locator[2*i+1])
		if lo < p.min || lo > p.max || la < p.min || la > p.max {
			return 0, 0, fmt.Errorf("%w: %s pair of %q must be in range %c to %c",
				ErrInvalidLocator, p.position, locator, p.min, p.max)
		}
		ilon += int64(lo-p.min) * p.value
		ilat += int64(la-p.min) * p.value
	}

	if center {
		ilon += pairs[n-1].value / 2
		ilat += pairs[n-1].value / 2
	}
	return ilon, ilat, nil
}

// upperASCII folds a lower-case ASCII letter. Any other byte, including
// parts of multi-byte runes, is returned unchanged and fails the range check.
func upperASCII(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// Encode returns the locator of the cell containing dd, precision pairs
// long. Subsquare letters are emitted in lower case, field letters in upper
// case. The north pole and the antimeridian fall into the last cell.
func Encode(dd DecimalDegrees, precision int) (string, error) {
	if precision < 1 || precision > MaxPairs {
		return "", fmt.Errorf("%w: precision %d outside 1..%d", ErrInvalidLocator, precision, MaxPairs)
	}
	if math.IsNaN(dd.Latitude) || dd.Latitude < -90 || dd.Latitude > 90 {
		return "", fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocator, dd.Latitude)
	}
	if math.IsNaN(dd.Longitude) || dd.Longitude < -180 || dd.Longitude > 180 {
		return "", fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocator, dd.Longitude)
	}

	ilon := clampUnits(int64(math.Floor((dd.Longitude + 180) / 360 * units)))
	ilat := clampUnits(int64(math.Floor((dd.Latitude + 90) / 180 * units)))

	var b strings.Builder
	b.Grow(2 * precision)
	for i := 0; i < precision; i++ {
		p := pairs[i]
		lo, la := ilon/p.value, ilat/p.value
		ilon -= lo * p.value
		ilat -= la * p.value

		base := p.min
		if i%2 == 0 && i > 0 {
			base = 'a'
		}
		b.WriteByte(base + byte(lo))
		b.WriteByte(base + byte(la))
	}
	return b.String(), nil
}

func clampUnits(u int64) int64 {
	if u < 0 {
		return 0
	}
	if u >= units {
		return units - 1
	}
	return u
}
