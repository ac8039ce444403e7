package utils

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ValidateRegion checks that every ring of a region boundary is a closed
// polygon ring of valid WGS84 coordinates.
func ValidateRegion(g orb.Geometry) error {
	switch shape := g.(type) {
	case orb.Polygon:
		return validatePolygon(shape)
	case orb.MultiPolygon:
		if len(shape) == 0 {
			return errors.New("multipolygon has no polygons")
		}
		for i, p := range shape {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported region geometry %T", g)
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon has no rings")
	}
	for i, ring := range p {
		// A valid ring needs at least 3 distinct points plus the closing one
		if len(ring) < 4 {
			return fmt.Errorf("ring %d must have at least 4 coordinates", i)
		}
		if !ring.Closed() {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for j, pt := range ring {
			if err := ValidateCoordinate(pt); err != nil {
				return fmt.Errorf("ring %d, coordinate %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// ValidateCoordinate validates a single WGS84 point.
func ValidateCoordinate(pt orb.Point) error {
	// Latitude must be between -90 and 90
	if pt.Lat() < -90 || pt.Lat() > 90 {
		return fmt.Errorf("latitude %.6f is out of valid range [-90, 90]", pt.Lat())
	}

	// Longitude must be between -180 and 180
	if pt.Lon() < -180 || pt.Lon() > 180 {
		return fmt.Errorf("longitude %.6f is out of valid range [-180, 180]", pt.Lon())
	}

	return nil
}
