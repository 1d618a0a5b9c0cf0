package geom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// ParseError reports a malformed geometry literal.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed geometry literal %q: %v", abbreviate(e.Text), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads a geometry literal in WKT, EWKT or GeoJSON form and returns
// the geometry with its SRID. Literals without an SRID prefix report
// DefaultSRID. The result is validated.
func Parse(text string) (orb.Geometry, int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, 0, &ParseError{Text: text, Err: fmt.Errorf("empty literal")}
	}

	srid := DefaultSRID
	if len(s) > 5 && strings.EqualFold(s[:5], "SRID=") {
		head, rest, ok := strings.Cut(s[5:], ";")
		if !ok {
			return nil, 0, &ParseError{Text: text, Err: fmt.Errorf("SRID prefix without ';'")}
		}
		n, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil || n < 0 {
			return nil, 0, &ParseError{Text: text, Err: fmt.Errorf("invalid SRID %q", head)}
		}
		srid = n
		s = strings.TrimSpace(rest)
	}

	var (
		g   orb.Geometry
		err error
	)
	if strings.HasPrefix(s, "{") {
		var gj *geojson.Geometry
		gj, err = geojson.UnmarshalGeometry([]byte(s))
		if err == nil {
			g = gj.Geometry()
		}
	} else {
		g, err = wkt.Unmarshal(s)
	}
	if err != nil {
		return nil, 0, &ParseError{Text: text, Err: err}
	}
	if g == nil {
		return nil, 0, &ParseError{Text: text, Err: fmt.Errorf("no geometry")}
	}
	if err := Validate(g); err != nil {
		return nil, 0, &ParseError{Text: text, Err: err}
	}
	return g, srid, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static fixtures.
func MustParse(text string) orb.Geometry {
	g, _, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return g
}

func abbreviate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
