package geo

import (
	"fmt"
	"strings"
)

// DecodeMaidenhead converts a 2, 4, or 6-character Maidenhead locator
// into the latitude/longitude of the center of the encoded grid square.
// Deterministic: the same locator always decodes to the same point.
func DecodeMaidenhead(locator string) (lat, lon float64, err error) {
	locator = strings.ToUpper(strings.TrimSpace(locator))
	if len(locator) < 2 || len(locator)%2 != 0 {
		return 0, 0, fmt.Errorf("geo: invalid locator length %q", locator)
	}

	lon = -180.0
	lat = -90.0
	lonSize := 20.0
	latSize := 10.0

	// Field: A-R, 20 deg lon x 10 deg lat.
	if err := checkRange(locator[0], 'A', 'R'); err != nil {
		return 0, 0, err
	}
	if err := checkRange(locator[1], 'A', 'R'); err != nil {
		return 0, 0, err
	}
	lon += float64(locator[0]-'A') * lonSize
	lat += float64(locator[1]-'A') * latSize

	if len(locator) >= 4 {
		if err := checkRange(locator[2], '0', '9'); err != nil {
			return 0, 0, err
		}
		if err := checkRange(locator[3], '0', '9'); err != nil {
			return 0, 0, err
		}
		lonSize /= 10
		latSize /= 10
		lon += float64(locator[2]-'0') * lonSize
		lat += float64(locator[3]-'0') * latSize
	}

	if len(locator) >= 6 {
		c4 := toUpperLetter(locator[4])
		c5 := toUpperLetter(locator[5])
		if err := checkRange(c4, 'A', 'X'); err != nil {
			return 0, 0, err
		}
		if err := checkRange(c5, 'A', 'X'); err != nil {
			return 0, 0, err
		}
		lonSize /= 24
		latSize /= 24
		lon += float64(c4-'A') * lonSize
		lat += float64(c5-'A') * latSize
	}

	// Center of the smallest resolved square.
	lon += lonSize / 2
	lat += latSize / 2

	return lat, lon, nil
}

func toUpperLetter(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func checkRange(b, lo, hi byte) error {
	if b < lo || b > hi {
		return fmt.Errorf("geo: locator character %q out of range [%q-%q]", b, lo, hi)
	}
	return nil
}
