package compiler

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery/expr"
	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/literal"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

type row struct {
	fields map[string]any
	links  map[string][]predicate.Row
}

func (r *row) Field(column string) any { return r.fields[column] }

func (r *row) Follow(h predicate.Hop) []predicate.Row { return r.links[h.Name] }

func compile(t *testing.T, entityType, filter string) predicate.Pred {
	t.Helper()
	p, err := New(nil).Compile(entityType, parser.MustParse(filter))
	if err != nil {
		t.Fatalf("Compile(%s, %q) failed: %v", entityType, filter, err)
	}
	return p
}

func encode(t *testing.T, p predicate.Pred) (string, []any, []predicate.Join) {
	t.Helper()
	enc := predicate.NewDuckDBEncoder(nil)
	sql, err := enc.Encode(p)
	if err != nil {
		t.Fatalf("Encode(%v) failed: %v", p, err)
	}
	return sql, enc.Args(), enc.Joins()
}

func TestCompileSQL(t *testing.T) {
	tests := []struct {
		entity string
		filter string
		sql    string
		args   int
	}{
		{"Thing", "name eq 'foo'", "e.name = ?", 1},
		{"Thing", "@iot.id eq 'x'", "e.id = ?", 1},
		{"Thing", "name eq null", "e.name IS NULL", 0},
		{"Thing", "null ne name", "e.name IS NOT NULL", 0},
		{"Thing", "properties/owner eq 'bob'", "json_extract_string(e.properties, '$.owner') = ?", 1},
		{"Thing", "properties/depth gt 3", "TRY_CAST(json_extract_string(e.properties, '$.depth') AS DOUBLE) > ?", 1},
		{"Thing", "substringof('abc', name)", "contains(e.name, ?)", 1},
		{"Thing", "startswith(name, 'The') eq false", "NOT COALESCE(prefix(e.name, ?), FALSE)", 1},
		{"Thing", "startswith(name, 'The') ne false", "prefix(e.name, ?)", 1},
		{"Thing", "length(name) add 1 gt 5", "(length(e.name) + ?) > ?", 2},
		{"Thing", "tolower(name) eq 'a' and indexof(name, 'b') ge 0", "(lower(e.name) = ? AND (instr(e.name, ?) - 1) >= ?)", 3},
		{"Thing", "not (name eq 'a' and description eq 'b')", "(e.name <> ? OR e.name IS NULL OR e.description <> ? OR e.description IS NULL)", 2},
		{"Observation", "result gt 5", "e.value_quantity > ?", 1},
		{"Observation", "result eq 'high'", "e.value_text = ?", 1},
		{"Observation", "result eq true", "e.value_boolean = TRUE", 0},
		{"Observation", "not (result eq true)", "(e.value_boolean <> TRUE OR e.value_boolean IS NULL)", 0},
		{"Observation", "result div 2 gt 1", "(e.value_quantity / ?) > ?", 2},
		{"Observation", "result mod 2 eq 1", "(e.value_quantity % ?) = ?", 2},
		{"Observation", "-result lt 0", "(-e.value_quantity) < ?", 1},
		{"Observation", "round(result) eq 3", "round(e.value_quantity) = ?", 1},
		{"Observation", "year(phenomenonTime) eq 2020", "year(e.phenomenon_time_start) = ?", 1},
		{"Observation", "phenomenonTime gt 2020-01-01T00:00:00Z", "e.phenomenon_time_start > CAST(? AS TIMESTAMPTZ)", 1},
		{"Observation", "maxdatetime(phenomenonTime) lt 2020-01-01T00:00:00Z", "e.phenomenon_time_end < CAST(? AS TIMESTAMPTZ)", 1},
		{"Observation", "mindatetime(phenomenonTime) ge 2020-01-01T00:00:00Z", "e.phenomenon_time_start >= CAST(? AS TIMESTAMPTZ)", 1},
		{"Observation", "maxdatetime(resultTime) eq 2020-01-01T00:00:00Z", "e.result_time = CAST(? AS TIMESTAMPTZ)", 1},
		{"Datastream", "maxdatetime(phenomenonTime) gt 2021-06-01T00:00:00Z", "e.last_value_at > CAST(? AS TIMESTAMPTZ)", 1},
		{"Datastream", "mindatetime(phenomenonTime) gt 2021-06-01T00:00:00Z", "e.first_value_at > CAST(? AS TIMESTAMPTZ)", 1},
		{"Observation", "Datastream/Sensor/name eq 'x'", "j2.name = ?", 1},
		{"Datastream", "unitOfMeasurement/symbol eq 'degC'", "e.unit_symbol = ?", 1},
		{"Datastream", "resultTime le now()", "e.result_time_start <= now()", 0},
		{"Location", "st_equals(location, geography'POINT(30 10)')", "ST_Equals(e.geom, ST_GeomFromWKB(?))", 1},
		{"Location", "not st_equals(location, geography'POINT(30 10)')", "NOT COALESCE(ST_Equals(e.geom, ST_GeomFromWKB(?)), FALSE)", 1},
		{"Location", "location eq geography'POINT(30 10)'", "ST_Equals(e.geom, ST_GeomFromWKB(?))", 1},
		{"Location", "st_relate(location, geography'POINT(1 1)', 'T*F**F***')", "ST_Relate(e.geom, ST_GeomFromWKB(?), ?)", 2},
		{"Location", "geo.distance(location, geography'POINT(0 0)') lt 10", "ST_Distance(e.geom, ST_GeomFromWKB(?)) < ?", 2},
		{"Location", "true", "TRUE", 0},
	}

	for _, tt := range tests {
		t.Run(tt.entity+"/"+tt.filter, func(t *testing.T) {
			sql, args, _ := encode(t, compile(t, tt.entity, tt.filter))
			if sql != tt.sql {
				t.Errorf("got  %s\nwant %s", sql, tt.sql)
			}
			if len(args) != tt.args {
				t.Errorf("got %d args %v, want %d", len(args), args, tt.args)
			}
		})
	}
}

func TestCompileJoins(t *testing.T) {
	p := compile(t, "Observation", "Datastream/Sensor/name eq 'x' and Datastream/name eq 'y'")
	sql, _, joins := encode(t, p)
	if sql != "(j2.name = ? AND j1.name = ?)" {
		t.Errorf("sql = %s", sql)
	}
	want := []string{
		"LEFT JOIN dataset j1 ON j1.id = e.dataset_id",
		"LEFT JOIN procedure j2 ON j2.id = j1.procedure_id",
	}
	if len(joins) != len(want) {
		t.Fatalf("got %d joins, want %d", len(joins), len(want))
	}
	for i, j := range joins {
		if j.SQL() != want[i] {
			t.Errorf("join %d = %s, want %s", i, j.SQL(), want[i])
		}
	}
}

func TestIntegerWidening(t *testing.T) {
	p := compile(t, "Observation", "result gt 5")
	cmp, ok := p.(*predicate.Compare)
	if !ok {
		t.Fatalf("expected comparison, got %T", p)
	}
	c, ok := cmp.Right.(*predicate.Const)
	if !ok || c.Value != 5.0 || c.Type != predicate.KindDecimal {
		t.Fatalf("expected decimal 5, got %v", cmp.Right)
	}
}

func TestSpatialNormalization(t *testing.T) {
	tests := []struct {
		filter string
		fn     string
		args   int
	}{
		{"st_within(geography'POINT(1 1)', location)", predicate.STContains, 2},
		{"st_contains(geography'POLYGON((0 0, 2 0, 2 2, 0 2, 0 0))', location)", predicate.STWithin, 2},
		{"st_equals(geography'POINT(1 1)', location)", predicate.STEquals, 2},
		{"st_within(location, geography'POINT(1 1)')", predicate.STWithin, 2},
		{"st_relate(geography'POINT(1 1)', location, 'T*F**F***')", predicate.STRelate, 3},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			p := compile(t, "Location", tt.filter)
			test, ok := p.(*predicate.Test)
			if !ok {
				t.Fatalf("expected test, got %T", p)
			}
			if test.Func != tt.fn {
				t.Errorf("func = %s, want %s", test.Func, tt.fn)
			}
			if len(test.Args) != tt.args {
				t.Fatalf("got %d args", len(test.Args))
			}
			if _, ok := test.Args[0].(*predicate.Column); !ok {
				t.Errorf("first argument should be the column, got %v", test.Args[0])
			}
		})
	}

	p := compile(t, "Location", "st_relate(geography'POINT(1 1)', location, 'T*F**F***')")
	pattern := p.(*predicate.Test).Args[2].(*predicate.Const).Value
	if pattern != "T*****FF*" {
		t.Errorf("pattern = %v, want transposed T*****FF*", pattern)
	}
}

func TestNegationClosure(t *testing.T) {
	square := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	rows := []predicate.Row{
		&row{fields: map[string]any{"id": "1", "name": "a", "geom": orb.Point{52, 52}, "properties": `{"kind":"x"}`}},
		&row{fields: map[string]any{"id": "2"}},
		&row{fields: map[string]any{"id": "3", "name": "b", "geom": square, "properties": `{"kind":"y"}`}},
		&row{fields: map[string]any{"id": "4", "name": "", "geom": orb.Point{30, 10}}},
	}

	filters := []string{
		"st_equals(location, geography'POINT(30 10)')",
		"st_equals(location, geography'POINT(52 52)')",
		"st_disjoint(location, geography'POINT(30 10)')",
		"st_disjoint(location, geography'POINT(52 52)')",
		"st_within(location, geography'POLYGON((0 0, 60 0, 60 60, 0 60, 0 0))')",
		"st_intersects(geography'POINT(5 5)', location)",
		"st_touches(location, geography'POINT(0 5)')",
		"st_relate(location, geography'POINT(5 5)', 'T********')",
		"location eq geography'POINT(52 52)'",
		"location ne geography'POINT(52 52)'",
		"name eq 'a'",
		"name ne 'a'",
		"name eq null",
		"name eq 'a' or st_touches(location, geography'POINT(0 5)')",
		"name gt 'a' and st_within(location, geography'POLYGON((0 0, 60 0, 60 60, 0 60, 0 0))')",
		"startswith(name, 'a') eq false",
		"startswith(name, 'a') eq endswith(name, 'a')",
		"length(name) gt 0",
		"length(name) div 1 eq 1",
		"geo.distance(location, geography'POINT(0 0)') lt 100",
		"properties/kind eq 'x'",
		"not (name eq 'b')",
	}

	c := New(nil)
	for _, filter := range filters {
		t.Run(filter, func(t *testing.T) {
			n := parser.MustParse(filter)
			p, err := c.Compile("Location", n)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			negated, err := c.Compile("Location", expr.Not(n))
			if err != nil {
				t.Fatalf("Compile(not) failed: %v", err)
			}
			double, err := c.Compile("Location", expr.Not(expr.Not(n)))
			if err != nil {
				t.Fatalf("Compile(not not) failed: %v", err)
			}
			complement := predicate.Not(p)

			for _, r := range rows {
				id := r.Field("id")
				pos, err := predicate.Evaluate(p, r)
				if err != nil {
					t.Fatalf("row %v: %v", id, err)
				}
				neg, err := predicate.Evaluate(negated, r)
				if err != nil {
					t.Fatalf("row %v: %v", id, err)
				}
				comp, err := predicate.Evaluate(complement, r)
				if err != nil {
					t.Fatalf("row %v: %v", id, err)
				}
				dbl, err := predicate.Evaluate(double, r)
				if err != nil {
					t.Fatalf("row %v: %v", id, err)
				}
				if neg == pos {
					t.Errorf("row %v: compile(not e) = %v, compile(e) = %v", id, neg, pos)
				}
				if comp == pos {
					t.Errorf("row %v: not(compile(e)) = %v, compile(e) = %v", id, comp, pos)
				}
				if dbl != pos {
					t.Errorf("row %v: compile(not not e) = %v, compile(e) = %v", id, dbl, pos)
				}
			}
		})
	}
}

func TestDeMorgan(t *testing.T) {
	rows := []predicate.Row{
		&row{fields: map[string]any{"name": "a", "description": "b"}},
		&row{fields: map[string]any{"name": "a"}},
		&row{fields: map[string]any{"description": "b"}},
		&row{fields: map[string]any{}},
		&row{fields: map[string]any{"name": "x", "description": "y"}},
	}
	left := compile(t, "Thing", "not (name eq 'a' and description eq 'b')")
	right := compile(t, "Thing", "not (name eq 'a') or not (description eq 'b')")
	for i, r := range rows {
		l, err := predicate.Evaluate(left, r)
		if err != nil {
			t.Fatal(err)
		}
		rr, err := predicate.Evaluate(right, r)
		if err != nil {
			t.Fatal(err)
		}
		if l != rr {
			t.Errorf("row %d: not(A and B) = %v, not A or not B = %v", i, l, rr)
		}
	}
}

func TestNullGeometry(t *testing.T) {
	r := &row{fields: map[string]any{"id": "1"}}
	for name := range spatialFunctions {
		args := "location, geography'POINT(1 1)'"
		if name == predicate.STRelate {
			args += ", 'T********'"
		}
		filter := name + "(" + args + ")"

		pos, err := predicate.Evaluate(compile(t, "Location", filter), r)
		if err != nil {
			t.Fatalf("%s: %v", filter, err)
		}
		neg, err := predicate.Evaluate(compile(t, "Location", "not "+filter), r)
		if err != nil {
			t.Fatalf("not %s: %v", filter, err)
		}
		if pos || !neg {
			t.Errorf("%s on null geometry: positive %v, negated %v", name, pos, neg)
		}
	}
}

func TestCompileOperand(t *testing.T) {
	op, err := New(nil).CompileOperand("Observation", expr.Prop("result"))
	if err != nil {
		t.Fatalf("CompileOperand failed: %v", err)
	}
	col, ok := op.(*predicate.Column)
	if !ok || col.Name != "value_quantity" {
		t.Fatalf("expected value_quantity column, got %v", op)
	}

	if _, err := New(nil).CompileOperand("Observation", parser.MustParse("result eq 1")); err == nil {
		t.Fatal("expected error for boolean operand")
	}
}

func TestSRIDOption(t *testing.T) {
	n := parser.MustParse("st_equals(location, geography'SRID=3857;POINT(1 1)')")
	if _, err := New(nil).Compile("Location", n); err == nil {
		t.Fatal("expected SRID mismatch with the default SRID")
	}
	if _, err := New(nil, WithSRID(3857)).Compile("Location", n); err != nil {
		t.Fatalf("Compile with SRID 3857 failed: %v", err)
	}
}

func errorAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		entity string
		filter string
		check  func(error) bool
	}{
		{"Thing", "foo(name)", errorAs[*UnsupportedFunctionError]},
		{"Thing", "length(name, 'x') eq 1", errorAs[*InvalidArgumentError]},
		{"Thing", "length(1) eq 1", errorAs[*InvalidArgumentError]},
		{"Thing", "substring(name, 1.5) eq 'a'", errorAs[*InvalidArgumentError]},
		{"Thing", "contains(name, name eq 'a')", errorAs[*InvalidArgumentError]},
		{"Location", "st_equals(location)", errorAs[*InvalidArgumentError]},
		{"Location", "st_equals(location, 'abc')", errorAs[*InvalidArgumentError]},
		{"Location", "st_relate(location, geography'POINT(1 1)', 'XYZ')", errorAs[*InvalidArgumentError]},
		{"Location", "st_relate(location, geography'POINT(1 1)', name)", errorAs[*InvalidArgumentError]},
		{"Observation", "result div 0 gt 1", errorAs[*DivisionByZeroError]},
		{"Observation", "result mod 0.0 eq 1", errorAs[*DivisionByZeroError]},
		{"Thing", "name eq 1", errorAs[*literal.TypeMismatchError]},
		{"Thing", "name gt true", errorAs[*literal.TypeMismatchError]},
		{"Thing", "name lt null", errorAs[*literal.TypeMismatchError]},
		{"Location", "location lt geography'POINT(1 1)'", errorAs[*literal.TypeMismatchError]},
		{"Thing", "name and true", errorAs[*literal.TypeMismatchError]},
		{"Thing", "not name", errorAs[*literal.TypeMismatchError]},
		{"Thing", "name", errorAs[*literal.TypeMismatchError]},
		{"Thing", "name add 1 eq 2", errorAs[*literal.TypeMismatchError]},
		{"Observation", "phenomenonTime add 1 gt 2", errorAs[*literal.TypeMismatchError]},
		{"Observation", "phenomenonTime eq 2020-01-01T00:00:00Z/2020-02-01T00:00:00Z", errorAs[*literal.TypeMismatchError]},
		{"Observation", "result eq geography'POINT(1 1)'", errorAs[*literal.TypeMismatchError]},
		{"Observation", "(result eq 1) lt true", errorAs[*literal.TypeMismatchError]},
		{"Thing", "color eq 'red'", errorAs[*schema.UnknownPropertyError]},
		{"Location", "Things/name eq 'x'", errorAs[*schema.UnknownPropertyError]},
		{"Location", "st_equals(location, geography'POINT(30')", errorAs[*geom.ParseError]},
		{"Widget", "name eq 'x'", errorAs[*schema.UnknownEntityTypeError]},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.entity+"/"+tt.filter, func(t *testing.T) {
			_, err := c.Compile(tt.entity, parser.MustParse(tt.filter))
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type %T: %v", err, err)
			}
		})
	}
}

func TestFunctions(t *testing.T) {
	names := Functions()
	for _, want := range []string{"st_equals", "st_relate", "substringof", "geo.distance", "now"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Functions() misses %s", want)
		}
	}
	if !reflect.DeepEqual(names, Functions()) {
		t.Error("Functions() is not deterministic")
	}
}
