package compiler

import (
	"strings"

	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/predicate"
)

// spatialFunctions maps each spatial predicate to the predicate that holds
// for the same pair of geometries given in reverse order.
var spatialFunctions = map[string]string{
	predicate.STEquals:     predicate.STEquals,
	predicate.STDisjoint:   predicate.STDisjoint,
	predicate.STTouches:    predicate.STTouches,
	predicate.STWithin:     predicate.STContains,
	predicate.STOverlaps:   predicate.STOverlaps,
	predicate.STCrosses:    predicate.STCrosses,
	predicate.STIntersects: predicate.STIntersects,
	predicate.STContains:   predicate.STWithin,
	predicate.STRelate:     predicate.STRelate,
}

// spatial compiles a spatial predicate call. It validates arity and
// argument kinds and puts a geometry literal given first into second
// position, mirroring the predicate.
func (s *scope) spatial(name string, args []fragment) (fragment, error) {
	mirror, ok := spatialFunctions[name]
	if !ok {
		return fragment{}, &UnsupportedFunctionError{Name: name}
	}

	want := 2
	if name == predicate.STRelate {
		want = 3
	}
	if len(args) != want {
		return fragment{}, &InvalidArgumentError{
			Func:   name,
			Arg:    -1,
			Reason: arity(want, want, len(args)),
		}
	}

	ops := make([]predicate.Operand, want)
	for i := 0; i < 2; i++ {
		op, err := s.argument(name, i, args[i], pGeometry)
		if err != nil {
			return fragment{}, err
		}
		ops[i] = op
	}

	var pattern string
	if name == predicate.STRelate {
		op, err := s.argument(name, 2, args[2], pPattern)
		if err != nil {
			return fragment{}, err
		}
		pattern = op.(*predicate.Const).Value.(string)
	}

	_, firstConst := ops[0].(*predicate.Const)
	_, secondConst := ops[1].(*predicate.Const)
	if firstConst && !secondConst {
		ops[0], ops[1] = ops[1], ops[0]
		name = mirror
		pattern = geom.TransposePattern(pattern)
	}
	if name == predicate.STRelate {
		ops[2] = &predicate.Const{Value: pattern, Type: predicate.KindString}
	}

	return fragment{pred: &predicate.Test{Func: name, Args: ops}}, nil
}

// relatePattern validates a DE-9IM pattern argument.
func relatePattern(fn string, i int, c *predicate.Const) (*predicate.Const, error) {
	p, ok := c.Value.(string)
	if !ok || c.Type != predicate.KindString {
		return nil, &InvalidArgumentError{Func: fn, Arg: i, Reason: "expected " + pPattern.String() + ", got " + c.Type.String()}
	}
	if !geom.ValidPattern(p) {
		return nil, &InvalidArgumentError{Func: fn, Arg: i, Reason: "invalid DE-9IM pattern " + quote(p)}
	}
	return &predicate.Const{Value: strings.ToUpper(p), Type: predicate.KindString}, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
