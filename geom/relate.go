package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	sf "github.com/peterstace/simplefeatures/geom"
)

// Matrix is a DE-9IM intersection matrix in its nine character form.
type Matrix string

func (m Matrix) String() string { return string(m) }

// Matches reports whether m satisfies a DE-9IM pattern of the characters
// T, F, *, 0, 1 and 2.
func (m Matrix) Matches(pattern string) bool {
	ok, err := sf.RelateMatches(string(m), pattern)
	return err == nil && ok
}

// ValidPattern reports whether p is a nine character DE-9IM pattern.
func ValidPattern(p string) bool {
	if len(p) != 9 {
		return false
	}
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case 'T', 't', 'F', 'f', '*', '0', '1', '2':
		default:
			return false
		}
	}
	return true
}

// TransposePattern swaps the roles of the two geometries in a pattern.
func TransposePattern(p string) string {
	if len(p) != 9 {
		return p
	}
	b := []byte(p)
	b[1], b[3] = p[3], p[1]
	b[2], b[6] = p[6], p[2]
	b[5], b[7] = p[7], p[5]
	return string(b)
}

// convert hands an orb geometry to simplefeatures through its WKB form.
func convert(g orb.Geometry) (sf.Geometry, error) {
	data, err := EncodeWKB(g)
	if err != nil {
		return sf.Geometry{}, err
	}
	out, err := sf.UnmarshalWKB(data)
	if err != nil {
		return sf.Geometry{}, fmt.Errorf("geom: convert %s: %w", g.GeoJSONType(), err)
	}
	return out, nil
}

func convertPair(a, b orb.Geometry) (sf.Geometry, sf.Geometry, error) {
	ga, err := convert(a)
	if err != nil {
		return sf.Geometry{}, sf.Geometry{}, err
	}
	gb, err := convert(b)
	if err != nil {
		return sf.Geometry{}, sf.Geometry{}, err
	}
	return ga, gb, nil
}

// Relate computes the intersection matrix of a and b.
func Relate(a, b orb.Geometry) (Matrix, error) {
	if a == nil || b == nil {
		return "", fmt.Errorf("geom: relate of a nil geometry")
	}
	ga, gb, err := convertPair(a, b)
	if err != nil {
		return "", err
	}
	m, err := sf.Relate(ga, gb)
	if err != nil {
		return "", err
	}
	return Matrix(m), nil
}

// relation lifts a simplefeatures predicate to orb geometries. A nil operand
// never satisfies a relation.
func relation(fn func(a, b sf.Geometry) (bool, error)) func(a, b orb.Geometry) (bool, error) {
	return func(a, b orb.Geometry) (bool, error) {
		if a == nil || b == nil {
			return false, nil
		}
		ga, gb, err := convertPair(a, b)
		if err != nil {
			return false, err
		}
		return fn(ga, gb)
	}
}

// Spatial relations between two geometries.
var (
	Equals   = relation(sf.Equals)
	Disjoint = relation(sf.Disjoint)
	Touches  = relation(sf.Touches)
	Within   = relation(sf.Within)
	Contains = relation(sf.Contains)
	Overlaps = relation(sf.Overlaps)
	Crosses  = relation(sf.Crosses)

	Intersects = relation(func(a, b sf.Geometry) (bool, error) {
		return sf.Intersects(a, b), nil
	})
)

// RelatePattern reports whether the matrix of a and b matches pattern.
func RelatePattern(a, b orb.Geometry, pattern string) (bool, error) {
	if !ValidPattern(pattern) {
		return false, fmt.Errorf("invalid intersection pattern %q", pattern)
	}
	if a == nil || b == nil {
		return false, nil
	}
	m, err := Relate(a, b)
	if err != nil {
		return false, err
	}
	return m.Matches(pattern), nil
}

// Distance returns the minimum planar distance between a and b, or NaN when
// either is nil or empty.
func Distance(a, b orb.Geometry) (float64, error) {
	if a == nil || b == nil {
		return math.NaN(), nil
	}
	ga, gb, err := convertPair(a, b)
	if err != nil {
		return 0, err
	}
	d, ok := sf.Distance(ga, gb)
	if !ok {
		return math.NaN(), nil
	}
	return d, nil
}

// Length returns the planar length of g.
func Length(g orb.Geometry) float64 {
	if g == nil {
		return math.NaN()
	}
	return planar.Length(g)
}
