package predicate

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery/geom"
)

// function is the storage side of a catalogue function: its DuckDB
// rendering and its in-memory evaluation. Evaluation receives non-null
// arguments only; a null argument makes the result null.
type function struct {
	sql  func(args []string) string
	eval func(args []any) (any, error)
}

// Spatial test names.
const (
	STEquals     = "st_equals"
	STDisjoint   = "st_disjoint"
	STTouches    = "st_touches"
	STWithin     = "st_within"
	STOverlaps   = "st_overlaps"
	STCrosses    = "st_crosses"
	STIntersects = "st_intersects"
	STContains   = "st_contains"
	STRelate     = "st_relate"
)

var functions = map[string]function{
	// string
	"contains": {
		sql:  sqlFunc("contains"),
		eval: stringTest(strings.Contains),
	},
	"startswith": {
		sql:  sqlFunc("prefix"),
		eval: stringTest(strings.HasPrefix),
	},
	"endswith": {
		sql:  sqlFunc("suffix"),
		eval: stringTest(strings.HasSuffix),
	},
	"length": {
		sql: sqlFunc("length"),
		eval: func(args []any) (any, error) {
			return int64(utf8.RuneCountInString(args[0].(string))), nil
		},
	},
	"indexof": {
		sql: func(a []string) string { return "(instr(" + a[0] + ", " + a[1] + ") - 1)" },
		eval: func(args []any) (any, error) {
			s, sub := args[0].(string), args[1].(string)
			i := strings.Index(s, sub)
			if i < 0 {
				return int64(-1), nil
			}
			return int64(utf8.RuneCountInString(s[:i])), nil
		},
	},
	"substring": {
		sql: func(a []string) string {
			if len(a) == 3 {
				return "substring(" + a[0] + ", " + a[1] + " + 1, " + a[2] + ")"
			}
			return "substring(" + a[0] + ", " + a[1] + " + 1)"
		},
		eval: func(args []any) (any, error) {
			r := []rune(args[0].(string))
			start := clamp(args[1].(int64), len(r))
			end := len(r)
			if len(args) == 3 {
				end = clamp(int64(start)+args[2].(int64), len(r))
			}
			if end < start {
				return "", nil
			}
			return string(r[start:end]), nil
		},
	},
	"tolower": {
		sql:  sqlFunc("lower"),
		eval: func(args []any) (any, error) { return strings.ToLower(args[0].(string)), nil },
	},
	"toupper": {
		sql:  sqlFunc("upper"),
		eval: func(args []any) (any, error) { return strings.ToUpper(args[0].(string)), nil },
	},
	"trim": {
		sql:  sqlFunc("trim"),
		eval: func(args []any) (any, error) { return strings.TrimSpace(args[0].(string)), nil },
	},
	"concat": {
		sql:  func(a []string) string { return "(" + a[0] + " || " + a[1] + ")" },
		eval: func(args []any) (any, error) { return args[0].(string) + args[1].(string), nil },
	},

	// date
	"year":   datePart("year", func(t time.Time) int64 { return int64(t.Year()) }),
	"month":  datePart("month", func(t time.Time) int64 { return int64(t.Month()) }),
	"day":    datePart("day", func(t time.Time) int64 { return int64(t.Day()) }),
	"hour":   datePart("hour", func(t time.Time) int64 { return int64(t.Hour()) }),
	"minute": datePart("minute", func(t time.Time) int64 { return int64(t.Minute()) }),
	"second": datePart("second", func(t time.Time) int64 { return int64(t.Second()) }),
	"fractionalseconds": {
		sql: func(a []string) string { return "((microsecond(" + a[0] + ") % 1000000) / 1000000.0)" },
		eval: func(args []any) (any, error) {
			return float64(args[0].(time.Time).UTC().Nanosecond()/1000) / 1e6, nil
		},
	},
	"now": {
		sql:  func([]string) string { return "now()" },
		eval: func([]any) (any, error) { return time.Now().UTC(), nil },
	},

	// math
	"round":   mathFunc("round", math.Round),
	"floor":   mathFunc("floor", math.Floor),
	"ceiling": mathFunc("ceil", math.Ceil),

	// geo
	"geo.distance": {
		sql: sqlFunc("ST_Distance"),
		eval: func(args []any) (any, error) {
			return geom.Distance(args[0].(orb.Geometry), args[1].(orb.Geometry))
		},
	},
	"geo.length": {
		sql: sqlFunc("ST_Length"),
		eval: func(args []any) (any, error) {
			return geom.Length(args[0].(orb.Geometry)), nil
		},
	},
	"geo.intersects": spatial("ST_Intersects", geom.Intersects),

	// spatial relations
	STEquals:     spatial("ST_Equals", geom.Equals),
	STDisjoint:   spatial("ST_Disjoint", geom.Disjoint),
	STTouches:    spatial("ST_Touches", geom.Touches),
	STWithin:     spatial("ST_Within", geom.Within),
	STOverlaps:   spatial("ST_Overlaps", geom.Overlaps),
	STCrosses:    spatial("ST_Crosses", geom.Crosses),
	STIntersects: spatial("ST_Intersects", geom.Intersects),
	STContains:   spatial("ST_Contains", geom.Contains),
	STRelate: {
		sql: sqlFunc("ST_Relate"),
		eval: func(args []any) (any, error) {
			return geom.RelatePattern(args[0].(orb.Geometry), args[1].(orb.Geometry), args[2].(string))
		},
	},
}

// Known reports whether name is a storage function.
func Known(name string) bool {
	_, ok := functions[name]
	return ok
}

func sqlFunc(name string) func([]string) string {
	return func(args []string) string {
		return name + "(" + strings.Join(args, ", ") + ")"
	}
}

func stringTest(fn func(s, sub string) bool) func([]any) (any, error) {
	return func(args []any) (any, error) {
		return fn(args[0].(string), args[1].(string)), nil
	}
}

func datePart(name string, fn func(time.Time) int64) function {
	return function{
		sql: sqlFunc(name),
		eval: func(args []any) (any, error) {
			return fn(args[0].(time.Time).UTC()), nil
		},
	}
}

func mathFunc(name string, fn func(float64) float64) function {
	return function{
		sql: sqlFunc(name),
		eval: func(args []any) (any, error) {
			switch v := args[0].(type) {
			case int64:
				return v, nil
			case float64:
				return fn(v), nil
			}
			return nil, fmt.Errorf("%s: not a number: %T", name, args[0])
		},
	}
}

func spatial(sqlName string, fn func(a, b orb.Geometry) (bool, error)) function {
	return function{
		sql: sqlFunc(sqlName),
		eval: func(args []any) (any, error) {
			return fn(args[0].(orb.Geometry), args[1].(orb.Geometry))
		},
	}
}

func clamp(i int64, n int) int {
	if i < 0 {
		return 0
	}
	if i > int64(n) {
		return n
	}
	return int(i)
}

// callFunction evaluates a catalogue function over evaluated arguments.
func callFunction(name string, args []any) (result any, err error) {
	fn, ok := functions[name]
	if !ok {
		return nil, fmt.Errorf("predicate: unknown function %q", name)
	}
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}
	defer func() {
		// argument values of an unexpected Go type
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("predicate: %s: %v", name, r)
		}
	}()
	return fn.eval(args)
}
