// Package geom parses geometry literals and evaluates planar spatial
// relations between them.
//
// Geometries are represented as orb.Geometry values. Literals are accepted as
// WKT, EWKT (with an SRID=n; prefix) or GeoJSON geometry objects, and are sent
// to DuckDB as WKB parameters.
package geom

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// DefaultSRID is the spatial reference system assumed for literals without
// an explicit SRID.
const DefaultSRID = 4326

// EncodeWKB converts an orb.Geometry to WKB bytes.
func EncodeWKB(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("cannot encode nil geometry")
	}
	return wkb.Marshal(g)
}

// DecodeWKB converts WKB bytes to an orb.Geometry.
func DecodeWKB(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot decode empty WKB data")
	}
	return wkb.Unmarshal(data)
}

// Validate checks that a geometry is well formed.
func Validate(g orb.Geometry) error {
	if g == nil {
		return fmt.Errorf("geometry is nil")
	}

	switch g := g.(type) {
	case orb.Point:
		return nil

	case orb.MultiPoint:
		if len(g) == 0 {
			return fmt.Errorf("multipoint is empty")
		}
		return nil

	case orb.LineString:
		if len(g) < 2 {
			return fmt.Errorf("linestring must have at least 2 points, has %d", len(g))
		}
		return nil

	case orb.MultiLineString:
		if len(g) == 0 {
			return fmt.Errorf("multilinestring is empty")
		}
		for i, ls := range g {
			if len(ls) < 2 {
				return fmt.Errorf("multilinestring[%d] must have at least 2 points, has %d", i, len(ls))
			}
		}
		return nil

	case orb.Ring:
		return validateRing(g, "ring")

	case orb.Polygon:
		if len(g) == 0 {
			return fmt.Errorf("polygon has no rings")
		}
		if err := validateRing(g[0], "polygon outer ring"); err != nil {
			return err
		}
		for i, ring := range g[1:] {
			if err := validateRing(ring, fmt.Sprintf("polygon hole[%d]", i)); err != nil {
				return err
			}
		}
		return nil

	case orb.MultiPolygon:
		if len(g) == 0 {
			return fmt.Errorf("multipolygon is empty")
		}
		for i, poly := range g {
			if err := Validate(poly); err != nil {
				return fmt.Errorf("multipolygon[%d]: %w", i, err)
			}
		}
		return nil

	case orb.Collection:
		if len(g) == 0 {
			return fmt.Errorf("geometry collection is empty")
		}
		for i, member := range g {
			if err := Validate(member); err != nil {
				return fmt.Errorf("collection[%d]: %w", i, err)
			}
		}
		return nil

	case orb.Bound:
		return fmt.Errorf("bounds are not geometry literals (convert to polygon)")

	default:
		return fmt.Errorf("unknown geometry type: %T", g)
	}
}

func validateRing(r orb.Ring, what string) error {
	if len(r) < 4 {
		return fmt.Errorf("%s must have at least 4 points, has %d", what, len(r))
	}
	if !r[0].Equal(r[len(r)-1]) {
		return fmt.Errorf("%s is not closed", what)
	}
	return nil
}

// TypeName returns the OGC type name of a geometry.
func TypeName(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point:
		return "Point"
	case orb.MultiPoint:
		return "MultiPoint"
	case orb.LineString:
		return "LineString"
	case orb.MultiLineString:
		return "MultiLineString"
	case orb.Ring, orb.Polygon:
		return "Polygon"
	case orb.MultiPolygon:
		return "MultiPolygon"
	case orb.Collection:
		return "GeometryCollection"
	case orb.Bound:
		return "Bound"
	default:
		return "Unknown"
	}
}
