package staquery_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/staquery"
	"github.com/hugr-lab/staquery/expr"
	"github.com/hugr-lab/staquery/memstore"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/predicate"
)

func newBuilder(t *testing.T) *staquery.Builder {
	t.Helper()
	b, err := staquery.NewBuilder(staquery.Config{})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return b
}

// locationStore holds exactly one location at (52 52).
func locationStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New(nil)
	if _, err := s.Insert("Location", memstore.Row{"name": "52N", "geom": orb.Point{52, 52}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return s
}

func TestSpatialScenarios(t *testing.T) {
	s := locationStore(t)
	b := newBuilder(t)
	ctx := context.Background()

	tests := []struct {
		filter string
		want   int
	}{
		{"st_equals(location, geography'POINT(30 10)')", 0},
		{"not st_equals(location, geography'POINT(30 10)')", 1},
		{"st_equals(location, geography'POINT(52 52)')", 1},
		{"not st_equals(location, geography'POINT(52 52)')", 0},
		{"st_disjoint(location, geography'POINT(30 10)')", 1},
		{"not st_disjoint(location, geography'POINT(52 52)')", 1},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			q, err := b.BuildQuery("Locations", staquery.QueryOptions{Filter: tt.filter})
			if err != nil {
				t.Fatalf("BuildQuery failed: %v", err)
			}
			rows, err := s.Find(ctx, q)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
			n, err := s.Count(ctx, q)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestNullGeometryFailsPositiveSpatialPredicates(t *testing.T) {
	s := memstore.New(nil)
	if _, err := s.Insert("Location", memstore.Row{"id": "nowhere", "name": "no geometry"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	b := newBuilder(t)
	ctx := context.Background()

	for _, fn := range []string{"st_equals", "st_disjoint", "st_intersects", "st_within", "st_contains", "st_touches", "st_overlaps", "st_crosses"} {
		t.Run(fn, func(t *testing.T) {
			positive := fmt.Sprintf("%s(location, geography'POINT(52 52)')", fn)
			for filter, want := range map[string]int{positive: 0, "not " + positive: 1} {
				q, err := b.BuildQuery("Locations", staquery.QueryOptions{Filter: filter})
				if err != nil {
					t.Fatalf("BuildQuery(%s) failed: %v", filter, err)
				}
				n, err := s.Count(ctx, q)
				if err != nil {
					t.Fatalf("Count failed: %v", err)
				}
				if n != want {
					t.Errorf("%s: count = %d, want %d", filter, n, want)
				}
			}
		})
	}
}

func TestStructuralPredicateNotBypassed(t *testing.T) {
	s := memstore.New(nil)
	for _, row := range []memstore.Row{
		{"id": "public", "name": "temperature"},
		{"id": "aggregated", "name": "temperature", "aggregation_id": "public"},
	} {
		if _, err := s.Insert("Datastream", row); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	b := newBuilder(t)
	ctx := context.Background()

	filters := []string{
		"",
		"true",
		"name eq 'temperature'",
		"not (name eq 'temperature')",
		"name eq 'x' or true",
		"not (name eq 'x' and false)",
		"@iot.id eq 'aggregated'",
		"not not (@iot.id eq 'aggregated')",
	}
	for _, filter := range filters {
		t.Run(filter, func(t *testing.T) {
			q, err := b.BuildQuery("Datastreams", staquery.QueryOptions{Filter: filter})
			if err != nil {
				t.Fatalf("BuildQuery failed: %v", err)
			}
			rows, err := s.Find(ctx, q)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			for _, r := range rows {
				if r["id"] == "aggregated" {
					t.Errorf("aggregated datastream selected by %q", filter)
				}
			}
		})
	}

	// The structural column is not a public property.
	_, err := b.BuildPredicate("Datastreams", "aggregation_id eq 'public'")
	var unknown *staquery.UnknownPropertyError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownPropertyError, got %v", err)
	}
}

func TestBuildPredicateEmptyFilter(t *testing.T) {
	b := newBuilder(t)

	p, err := b.BuildPredicate("Thing", "")
	if err != nil {
		t.Fatalf("BuildPredicate failed: %v", err)
	}
	if p != predicate.Truth(true) {
		t.Errorf("got %v, want TRUE", p)
	}

	p, err = b.BuildPredicate("Datastreams", "   ")
	if err != nil {
		t.Fatalf("BuildPredicate failed: %v", err)
	}
	if _, ok := p.(*predicate.IsNull); !ok {
		t.Errorf("expected the structural predicate alone, got %v", p)
	}

	p, err = b.BuildPredicateExpr("Datastream", nil)
	if err != nil {
		t.Fatalf("BuildPredicateExpr failed: %v", err)
	}
	if _, ok := p.(*predicate.IsNull); !ok {
		t.Errorf("expected the structural predicate alone, got %v", p)
	}
}

func TestBuildPredicateExpr(t *testing.T) {
	b := newBuilder(t)

	fromText, err := b.BuildPredicate("Datastream", "Sensor/name eq 'x'")
	if err != nil {
		t.Fatalf("BuildPredicate failed: %v", err)
	}
	fromTree, err := b.BuildPredicateExpr("Datastream", parser.MustParse("Sensor/name eq 'x'"))
	if err != nil {
		t.Fatalf("BuildPredicateExpr failed: %v", err)
	}
	if fromText.String() != fromTree.String() {
		t.Errorf("text and tree differ:\n%s\n%s", fromText, fromTree)
	}
}

func TestBuildPredicateErrors(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		name       string
		entityType string
		filter     string
		check      func(error) bool
	}{
		{"UnknownEntityType", "Widgets", "name eq 'x'", is[*staquery.UnknownEntityTypeError]},
		{"UnknownEntityTypeNoFilter", "Widgets", "", is[*staquery.UnknownEntityTypeError]},
		{"UnknownProperty", "Things", "colour eq 'red'", is[*staquery.UnknownPropertyError]},
		{"UnknownNavigation", "Things", "Sensor/name eq 'x'", is[*staquery.UnknownPropertyError]},
		{"TypeMismatch", "Things", "name gt 5", is[*staquery.TypeMismatchError]},
		{"GeometryParse", "Locations", "st_equals(location, geography'POINT(1)')", is[*staquery.GeometryParseError]},
		{"UnsupportedFunction", "Things", "soundex(name) eq 'x'", is[*staquery.UnsupportedFunctionError]},
		{"InvalidArgument", "Things", "startswith(name) eq true", is[*staquery.InvalidFunctionArgumentError]},
		{"DivisionByZero", "Observations", "result div 0 gt 1", is[*staquery.DivisionByZeroError]},
		{"Syntax", "Things", "name eq", is[*staquery.FilterSyntaxError]},
		{"InvalidMonth", "Observations", "phenomenonTime gt 2020-13-01T00:00:00Z", is[*staquery.TypeMismatchError]},
		{"InvalidDateTimeText", "Observations", "phenomenonTime gt datetime'not-a-time'", is[*staquery.TypeMismatchError]},
		{"InvertedPeriod", "Observations", "phenomenonTime gt 2020-02-01T00:00:00Z/2020-01-01T00:00:00Z", is[*staquery.TypeMismatchError]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := b.BuildPredicate(tt.entityType, tt.filter)
			if err == nil {
				t.Fatalf("expected error, got predicate %v", p)
			}
			if p != nil {
				t.Errorf("expected no predicate on error, got %v", p)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type %T: %v", errors.Unwrap(err), err)
			}
			var be *staquery.Error
			if !errors.As(err, &be) || be.EntityType != tt.entityType {
				t.Errorf("expected *staquery.Error for %s, got %v", tt.entityType, err)
			}
			if !staquery.IsInvalidQuery(err) {
				t.Error("IsInvalidQuery = false")
			}
			if code := status.Code(err); code != codes.InvalidArgument {
				t.Errorf("status code = %v, want InvalidArgument", code)
			}
		})
	}
}

// Trees decoded from other parsers can be malformed in ways the text parser
// never produces.
func TestBuildPredicateExprMalformed(t *testing.T) {
	b := newBuilder(t)
	name := &expr.PropertyReference{Path: []string{"name"}}

	tests := []struct {
		name  string
		tree  expr.Node
		check func(error) bool
	}{
		{"MissingOperand", &expr.BinaryExpr{Op: expr.OpEq, Left: name}, is[*staquery.FilterSyntaxError]},
		{"NestedMissingOperand", &expr.UnaryExpr{Op: expr.OpNot, Operand: &expr.BinaryExpr{Op: expr.OpEq, Right: expr.String("x")}}, is[*staquery.FilterSyntaxError]},
		{"UnknownBinaryOperator", &expr.BinaryExpr{Op: "xor", Left: name, Right: expr.String("x")}, is[*staquery.FilterSyntaxError]},
		{"UnknownUnaryOperator", &expr.UnaryExpr{Op: "~", Operand: name}, is[*staquery.FilterSyntaxError]},
		{"NilLiteral", &expr.BinaryExpr{Op: expr.OpEq, Left: name, Right: (*expr.Literal)(nil)}, is[*staquery.TypeMismatchError]},
		{"UnknownLiteralType", &expr.BinaryExpr{Op: expr.OpEq, Left: name, Right: &expr.Literal{Value: "x", Type: "blob"}}, is[*staquery.TypeMismatchError]},
		{"InvalidDateTime", &expr.BinaryExpr{Op: expr.OpEq, Left: name, Right: expr.DateTime("yesterday")}, is[*staquery.TypeMismatchError]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := b.BuildPredicateExpr("Things", tt.tree)
			if err == nil {
				t.Fatalf("expected error, got predicate %v", p)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type %T: %v", errors.Unwrap(err), err)
			}
			if !staquery.IsInvalidQuery(err) {
				t.Errorf("IsInvalidQuery = false for %v", err)
			}
			if code := status.Code(err); code != codes.InvalidArgument {
				t.Errorf("status code = %v, want InvalidArgument", code)
			}
		})
	}
}

func is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func TestBuildQuerySQL(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		name       string
		entityType string
		opts       staquery.QueryOptions
		sql        string
		count      string
		args       []any
	}{
		{
			name:       "Filter",
			entityType: "Locations",
			opts:       staquery.QueryOptions{Filter: "name eq 'harbour'", Top: intPtr(10)},
			sql:        "SELECT e.* FROM location e WHERE e.name = ? ORDER BY e.id LIMIT 10",
			count:      "SELECT COUNT(*) FROM location e WHERE e.name = ?",
			args:       []any{"harbour"},
		},
		{
			name:       "ScopeLinked",
			entityType: "Locations",
			opts:       staquery.QueryOptions{Scope: &staquery.Scope{EntityType: "Things", ID: "t2"}},
			sql:        "SELECT e.* FROM location e WHERE EXISTS (SELECT 1 FROM platform_location l1 JOIN platform s1 ON s1.id = l1.platform_id WHERE l1.location_id = e.id AND s1.id = ?) ORDER BY e.id LIMIT 100",
			count:      "SELECT COUNT(*) FROM location e WHERE EXISTS (SELECT 1 FROM platform_location l1 JOIN platform s1 ON s1.id = l1.platform_id WHERE l1.location_id = e.id AND s1.id = ?)",
			args:       []any{"t2"},
		},
		{
			name:       "ScopeToOne",
			entityType: "Observations",
			opts:       staquery.QueryOptions{Scope: &staquery.Scope{EntityType: "Datastream", ID: "d1"}, ID: "o1"},
			sql:        "SELECT e.* FROM observation e WHERE (e.dataset_id = ? AND e.id = ?) ORDER BY e.id LIMIT 100",
			count:      "SELECT COUNT(*) FROM observation e WHERE (e.dataset_id = ? AND e.id = ?)",
			args:       []any{"d1", "o1"},
		},
		{
			name:       "OrderByNavigation",
			entityType: "Datastreams",
			opts:       staquery.QueryOptions{OrderBy: "Sensor/name desc", Top: intPtr(500), Skip: 5},
			sql:        "SELECT e.* FROM dataset e LEFT JOIN procedure j1 ON j1.id = e.procedure_id WHERE e.aggregation_id IS NULL ORDER BY j1.name DESC, e.id LIMIT 100 OFFSET 5",
			count:      "SELECT COUNT(*) FROM dataset e WHERE e.aggregation_id IS NULL",
		},
		{
			name:       "OrderByID",
			entityType: "Things",
			opts:       staquery.QueryOptions{OrderBy: "@iot.id desc"},
			sql:        "SELECT e.* FROM platform e ORDER BY e.id DESC LIMIT 100",
			count:      "SELECT COUNT(*) FROM platform e",
		},
		{
			name:       "TopZero",
			entityType: "Things",
			opts:       staquery.QueryOptions{Top: intPtr(0)},
			sql:        "SELECT e.* FROM platform e ORDER BY e.id LIMIT 0",
			count:      "SELECT COUNT(*) FROM platform e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.BuildQuery(tt.entityType, tt.opts)
			if err != nil {
				t.Fatalf("BuildQuery failed: %v", err)
			}

			sql, args, err := q.SQL()
			if err != nil {
				t.Fatalf("SQL failed: %v", err)
			}
			if sql != tt.sql {
				t.Errorf("sql:\ngot  %s\nwant %s", sql, tt.sql)
			}
			if fmt.Sprint(args) != fmt.Sprint(tt.args) {
				t.Errorf("args = %v, want %v", args, tt.args)
			}

			count, countArgs, err := q.CountSQL()
			if err != nil {
				t.Fatalf("CountSQL failed: %v", err)
			}
			if count != tt.count {
				t.Errorf("count sql:\ngot  %s\nwant %s", count, tt.count)
			}
			if fmt.Sprint(countArgs) != fmt.Sprint(tt.args) {
				t.Errorf("count args = %v, want %v", countArgs, tt.args)
			}
		})
	}
}

func TestSelectSQLColumns(t *testing.T) {
	b := newBuilder(t)
	q, err := b.BuildQuery("Things", staquery.QueryOptions{})
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}
	sql, _, err := q.SelectSQL("id", "name")
	if err != nil {
		t.Fatalf("SelectSQL failed: %v", err)
	}
	if want := "SELECT e.id, e.name FROM platform e ORDER BY e.id LIMIT 100"; sql != want {
		t.Errorf("got  %s\nwant %s", sql, want)
	}
}

func TestBuildQueryErrors(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		name       string
		entityType string
		opts       staquery.QueryOptions
		check      func(error) bool
	}{
		{"NegativeTop", "Things", staquery.QueryOptions{Top: intPtr(-1)}, invalidQuery},
		{"NegativeSkip", "Things", staquery.QueryOptions{Skip: -3}, invalidQuery},
		{"UnrelatedScope", "Sensors", staquery.QueryOptions{Scope: &staquery.Scope{EntityType: "Locations", ID: "1"}}, invalidQuery},
		{"ScopeWithoutID", "Locations", staquery.QueryOptions{Scope: &staquery.Scope{EntityType: "Things"}}, invalidQuery},
		{"UnknownScopeType", "Locations", staquery.QueryOptions{Scope: &staquery.Scope{EntityType: "Widgets", ID: "1"}}, is[*staquery.UnknownEntityTypeError]},
		{"OrderByGeometry", "Locations", staquery.QueryOptions{OrderBy: "location"}, is[*staquery.TypeMismatchError]},
		{"OrderBySyntax", "Locations", staquery.QueryOptions{OrderBy: "name upward"}, is[*staquery.FilterSyntaxError]},
		{"OrderByUnknown", "Locations", staquery.QueryOptions{OrderBy: "colour"}, is[*staquery.UnknownPropertyError]},
		{"Filter", "Locations", staquery.QueryOptions{Filter: "name eq 1"}, is[*staquery.TypeMismatchError]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.BuildQuery(tt.entityType, tt.opts)
			if err == nil {
				t.Fatalf("expected error, got query %v", q)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("status code = %v, want InvalidArgument", status.Code(err))
			}
		})
	}
}

func invalidQuery(err error) bool { return errors.Is(err, staquery.ErrInvalidQuery) }

func TestNewBuilderInvalidConfig(t *testing.T) {
	for _, config := range []staquery.Config{
		{MaxPageSize: -1},
		{SRID: -4326},
	} {
		if _, err := staquery.NewBuilder(config); !errors.Is(err, staquery.ErrInvalidConfig) {
			t.Errorf("NewBuilder(%+v): expected ErrInvalidConfig, got %v", config, err)
		}
	}
}

func TestMaxPageSize(t *testing.T) {
	b, err := staquery.NewBuilder(staquery.Config{MaxPageSize: 20})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	for _, top := range []*int{nil, intPtr(50)} {
		q, err := b.BuildQuery("Things", staquery.QueryOptions{Top: top})
		if err != nil {
			t.Fatalf("BuildQuery failed: %v", err)
		}
		if q.Limit != 20 {
			t.Errorf("Limit = %d, want 20", q.Limit)
		}
	}
}

func TestSRIDConfig(t *testing.T) {
	b, err := staquery.NewBuilder(staquery.Config{SRID: 3857})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if _, err := b.BuildPredicate("Locations", "st_equals(location, geography'SRID=3857;POINT(1 1)')"); err != nil {
		t.Errorf("expected matching SRID to compile: %v", err)
	}
	if _, err := b.BuildPredicate("Locations", "st_equals(location, geography'POINT(1 1)')"); !is[*staquery.TypeMismatchError](err) {
		t.Errorf("expected TypeMismatchError for default SRID, got %v", err)
	}
}

func TestBuilderLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b, err := staquery.NewBuilder(staquery.Config{Logger: logger})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	if _, err := b.BuildPredicate("Things", "name eq 'x'"); err != nil {
		t.Fatalf("BuildPredicate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "level=DEBUG") || !strings.Contains(buf.String(), "entity_type=Things") {
		t.Errorf("expected debug log of the compiled filter, got:\n%s", buf.String())
	}

	buf.Reset()
	if _, err := b.BuildPredicate("Things", "colour eq 'red'"); err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "entity_type=Things") || !strings.Contains(out, "error=") {
		t.Errorf("expected warning for rejected filter, got:\n%s", out)
	}
}

func TestBuilderConcurrent(t *testing.T) {
	b := newBuilder(t)
	filters := []string{
		"st_equals(location, geography'POINT(52 52)')",
		"not st_disjoint(location, geography'POINT(30 10)')",
		"name eq 'x' or startswith(name, 'y')",
		"Things/name eq 'x'",
	}
	want := make([]string, len(filters))
	for i, f := range filters {
		p, err := b.BuildPredicate("Locations", f)
		if err != nil && i < 3 {
			t.Fatalf("BuildPredicate(%s) failed: %v", f, err)
		}
		if p != nil {
			want[i] = p.String()
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, f := range filters {
				p, err := b.BuildPredicate("Locations", f)
				if p == nil {
					if err == nil {
						t.Errorf("no predicate and no error for %s", f)
					}
					continue
				}
				if p.String() != want[i] {
					t.Errorf("%s: got %s, want %s", f, p, want[i])
				}
			}
		}()
	}
	wg.Wait()
}

func intPtr(n int) *int { return &n }
