// Package literal converts expression tree literals into typed constants.
//
// Conversion is strict. A literal satisfies an expected kind only when its
// own kind is that kind, or when it is an integer expected as a decimal.
// Null satisfies every kind.
package literal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery/expr"
	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/predicate"
)

// TypeMismatchError reports an operand whose kind an operator or function
// cannot accept.
type TypeMismatchError struct {
	// Context names the operator, function or literal being checked.
	Context string
	Want    string
	Got     string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s: expected %s, got %s", e.Context, e.Want, e.Got)
}

// Coercer converts literals. The zero value accepts geometries in
// geom.DefaultSRID.
type Coercer struct {
	// SRID is the spatial reference system geometry literals must use.
	SRID int
}

var defaultCoercer Coercer

// Infer converts a literal to a constant of its declared kind.
func Infer(lit *expr.Literal) (*predicate.Const, error) { return defaultCoercer.Infer(lit) }

// Coerce converts a literal to a constant of kind want.
func Coerce(lit *expr.Literal, want predicate.Kind) (*predicate.Const, error) {
	return defaultCoercer.Coerce(lit, want)
}

// Infer converts a literal to a constant of its declared kind. Numbers
// become integers when integral and decimals otherwise.
func (c Coercer) Infer(lit *expr.Literal) (*predicate.Const, error) {
	if lit == nil {
		return nil, &TypeMismatchError{Context: "literal", Want: "value", Got: "nil literal"}
	}
	switch lit.Type {
	case expr.TypeNull:
		return &predicate.Const{Type: predicate.KindNull}, nil

	case expr.TypeBoolean:
		switch v := lit.Value.(type) {
		case bool:
			return &predicate.Const{Value: v, Type: predicate.KindBoolean}, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				return &predicate.Const{Value: b, Type: predicate.KindBoolean}, nil
			}
		}

	case expr.TypeString:
		if s, ok := lit.Value.(string); ok {
			return &predicate.Const{Value: s, Type: predicate.KindString}, nil
		}

	case expr.TypeNumber:
		v, kind, err := number(lit.Value)
		if err != nil {
			return nil, err
		}
		return &predicate.Const{Value: v, Type: kind}, nil

	case expr.TypeDateTime:
		switch v := lit.Value.(type) {
		case time.Time:
			return &predicate.Const{Value: v.UTC(), Type: predicate.KindDateTime}, nil
		case string:
			t, err := ParseInstant(v)
			if err != nil {
				return nil, err
			}
			return &predicate.Const{Value: t, Type: predicate.KindDateTime}, nil
		}

	case expr.TypeGeometry:
		g, err := c.geometry(lit.Value)
		if err != nil {
			return nil, err
		}
		return &predicate.Const{Value: g, Type: predicate.KindGeometry}, nil

	default:
		return nil, &TypeMismatchError{Context: "literal " + lit.String(), Want: "known literal type", Got: strconv.Quote(string(lit.Type))}
	}
	return nil, &TypeMismatchError{Context: "literal " + lit.String(), Want: string(lit.Type), Got: fmt.Sprintf("%T", lit.Value)}
}

// Coerce converts a literal to a constant of kind want. Integers widen to
// decimals; any other kind change fails with TypeMismatchError.
func (c Coercer) Coerce(lit *expr.Literal, want predicate.Kind) (*predicate.Const, error) {
	v, err := c.Infer(lit)
	if err != nil {
		return nil, err
	}
	return Convert(v, want, lit.String())
}

// Convert applies the coercion rule to an already typed constant. Context
// names the value in error messages.
func Convert(v *predicate.Const, want predicate.Kind, context string) (*predicate.Const, error) {
	switch {
	case v.Type == want:
		return v, nil
	case v.Type == predicate.KindNull:
		return &predicate.Const{Type: want}, nil
	case v.Type == predicate.KindInteger && want == predicate.KindDecimal:
		return &predicate.Const{Value: float64(v.Value.(int64)), Type: predicate.KindDecimal}, nil
	}
	return nil, &TypeMismatchError{Context: context, Want: want.String(), Got: v.Type.String()}
}

func (c Coercer) geometry(value any) (orb.Geometry, error) {
	srid := c.SRID
	if srid == 0 {
		srid = geom.DefaultSRID
	}
	switch v := value.(type) {
	case orb.Geometry:
		if err := geom.Validate(v); err != nil {
			return nil, &geom.ParseError{Text: fmt.Sprint(v), Err: err}
		}
		return v, nil
	case string:
		g, got, err := geom.Parse(v)
		if err != nil {
			return nil, err
		}
		if got != srid {
			return nil, &TypeMismatchError{
				Context: "geometry literal",
				Want:    "SRID " + strconv.Itoa(srid),
				Got:     "SRID " + strconv.Itoa(got),
			}
		}
		return g, nil
	}
	return nil, &geom.ParseError{Text: fmt.Sprint(value), Err: fmt.Errorf("unsupported value %T", value)}
}

// ParseNumber reads numeric literal text. Integral text within int64 range
// becomes int64, anything else float64. OData type suffixes are ignored.
func ParseNumber(text string) (any, predicate.Kind, error) {
	s := strings.TrimSpace(text)
	if n := len(s); n > 1 && strings.ContainsRune("dDfFmMlL", rune(s[n-1])) {
		s = s[:n-1]
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, predicate.KindInteger, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, predicate.KindNull, &TypeMismatchError{Context: "literal " + text, Want: "number", Got: "text"}
	}
	return f, predicate.KindDecimal, nil
}

func number(value any) (any, predicate.Kind, error) {
	switch v := value.(type) {
	case string:
		return ParseNumber(v)
	case json.Number:
		return ParseNumber(v.String())
	case int:
		return int64(v), predicate.KindInteger, nil
	case int8:
		return int64(v), predicate.KindInteger, nil
	case int16:
		return int64(v), predicate.KindInteger, nil
	case int32:
		return int64(v), predicate.KindInteger, nil
	case int64:
		return v, predicate.KindInteger, nil
	case uint8:
		return int64(v), predicate.KindInteger, nil
	case uint16:
		return int64(v), predicate.KindInteger, nil
	case uint32:
		return int64(v), predicate.KindInteger, nil
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), predicate.KindInteger, nil
		}
		return float64(v), predicate.KindDecimal, nil
	case float32:
		return number(float64(v))
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), predicate.KindInteger, nil
		}
		return v, predicate.KindDecimal, nil
	}
	return nil, predicate.KindNull, &TypeMismatchError{Context: "number literal", Want: "number", Got: fmt.Sprintf("%T", value)}
}
