package schema

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hugr-lab/staquery/predicate"
)

func TestDefaultEntityTypes(t *testing.T) {
	s := Default()
	if got := len(s.EntityTypes()); got != 8 {
		t.Fatalf("expected 8 entity types, got %d", got)
	}
	for _, name := range []string{"Thing", "Things", "FeaturesOfInterest", "ObservedProperty"} {
		if _, err := s.EntityType(name); err != nil {
			t.Errorf("EntityType(%q): %v", name, err)
		}
	}

	_, err := s.EntityType("Widget")
	var unknown *UnknownEntityTypeError
	if !errors.As(err, &unknown) || unknown.Name != "Widget" {
		t.Fatalf("expected UnknownEntityTypeError for Widget, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		entity   string
		path     []string
		column   string
		kind     predicate.Kind
		hops     []string
		jsonPath []string
	}{
		{"direct", "Thing", []string{"name"}, "name", predicate.KindString, nil, nil},
		{"iot id", "Location", []string{"@iot.id"}, "id", predicate.KindString, nil, nil},
		{"geometry", "Location", []string{"location"}, "geom", predicate.KindGeometry, nil, nil},
		{"datastream phenomenon time", "Datastream", []string{"phenomenonTime"}, "first_value_at", predicate.KindDateTime, nil, nil},
		{"datastream result time", "Datastream", []string{"resultTime"}, "result_time_start", predicate.KindDateTime, nil, nil},
		{"observation phenomenon time", "Observation", []string{"phenomenonTime"}, "phenomenon_time_start", predicate.KindDateTime, nil, nil},
		{"historical location time", "HistoricalLocation", []string{"time"}, "time", predicate.KindDateTime, nil, nil},
		{"complex field", "Datastream", []string{"unitOfMeasurement", "symbol"}, "unit_symbol", predicate.KindString, nil, nil},
		{"sensor encoding", "Sensor", []string{"encodingType"}, "description_format", predicate.KindString, nil, nil},
		{"one hop", "Datastream", []string{"Sensor", "name"}, "name", predicate.KindString, []string{"Sensor"}, nil},
		{"two hops", "Observation", []string{"Datastream", "Thing", "name"}, "name", predicate.KindString, []string{"Datastream", "Thing"}, nil},
		{"json member", "Thing", []string{"properties", "owner", "name"}, "properties", predicate.KindJSON, nil, []string{"owner", "name"}},
		{"json through hop", "Observation", []string{"FeatureOfInterest", "properties", "a"}, "properties", predicate.KindJSON, []string{"FeatureOfInterest"}, []string{"a"}},
		{"plural root", "Things", []string{"description"}, "description", predicate.KindString, nil, nil},
	}

	s := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Resolve(tt.entity, tt.path)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			col := res.Column()
			if col.Name != tt.column {
				t.Errorf("column = %q, want %q", col.Name, tt.column)
			}
			if res.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", res.Kind(), tt.kind)
			}
			var hops []string
			for _, h := range res.Hops {
				hops = append(hops, h.Name)
			}
			if !reflect.DeepEqual(hops, tt.hops) {
				t.Errorf("hops = %v, want %v", hops, tt.hops)
			}
			if !reflect.DeepEqual(res.JSONPath, tt.jsonPath) {
				t.Errorf("json path = %v, want %v", res.JSONPath, tt.jsonPath)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	s := Default()
	path := []string{"Datastream", "ObservedProperty", "definition"}
	first, err := s.Resolve("Observation", path)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Resolve("Observation", path)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !reflect.DeepEqual(first.Column(), again.Column()) {
			t.Fatalf("resolution %d differs: %v vs %v", i, first.Column(), again.Column())
		}
	}
	if first.Column().Name != "identifier" {
		t.Errorf("expected identifier column, got %s", first.Column().Name)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		entity  string
		path    []string
		segment string
		reason  string
	}{
		{"unknown property", "Thing", []string{"color"}, "color", ""},
		{"unknown in hop", "Datastream", []string{"Sensor", "color"}, "color", ""},
		{"to-many", "Thing", []string{"Datastreams", "name"}, "Datastreams", "to-many"},
		{"relation last", "Datastream", []string{"Sensor"}, "Sensor", "followed by a property"},
		{"complex without field", "Datastream", []string{"unitOfMeasurement"}, "unitOfMeasurement", "field"},
		{"unknown field", "Datastream", []string{"unitOfMeasurement", "scale"}, "scale", "not a field"},
		{"scalar member", "Thing", []string{"name", "first"}, "first", "no members"},
		{"empty", "Thing", nil, "", "empty"},
	}

	s := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Resolve(tt.entity, tt.path)
			var unknown *UnknownPropertyError
			if !errors.As(err, &unknown) {
				t.Fatalf("expected UnknownPropertyError, got %v", err)
			}
			if unknown.Segment != tt.segment {
				t.Errorf("segment = %q, want %q", unknown.Segment, tt.segment)
			}
			if !strings.Contains(unknown.Reason, tt.reason) {
				t.Errorf("reason %q does not mention %q", unknown.Reason, tt.reason)
			}
			if !strings.Contains(err.Error(), unknown.EntityType) {
				t.Errorf("message %q does not name the entity type", err.Error())
			}
		})
	}

	if _, err := s.Resolve("Widget", []string{"name"}); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestResultVariants(t *testing.T) {
	res, err := Default().Resolve("Observation", []string{"result"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Polymorphic() {
		t.Fatal("result should be polymorphic")
	}

	tests := []struct {
		kind   predicate.Kind
		column string
		typ    predicate.Kind
	}{
		{predicate.KindDecimal, "value_quantity", predicate.KindDecimal},
		{predicate.KindInteger, "value_quantity", predicate.KindDecimal},
		{predicate.KindString, "value_text", predicate.KindString},
		{predicate.KindBoolean, "value_boolean", predicate.KindBoolean},
	}
	for _, tt := range tests {
		col, ok := res.ColumnFor(tt.kind)
		if !ok {
			t.Fatalf("no variant for %s", tt.kind)
		}
		if col.Name != tt.column || col.Type != tt.typ {
			t.Errorf("variant %s = %s %s, want %s %s", tt.kind, col.Name, col.Type, tt.column, tt.typ)
		}
	}
	if _, ok := res.ColumnFor(predicate.KindGeometry); ok {
		t.Error("unexpected geometry variant")
	}
}

func TestStructural(t *testing.T) {
	s := Default()

	p, err := s.Structural("Datastream")
	if err != nil {
		t.Fatalf("Structural failed: %v", err)
	}
	n, ok := p.(*predicate.IsNull)
	if !ok || n.Negated {
		t.Fatalf("expected IS NULL predicate, got %v", p)
	}
	if col, ok := n.Operand.(*predicate.Column); !ok || col.Name != "aggregation_id" {
		t.Fatalf("expected aggregation_id column, got %v", n.Operand)
	}

	for _, et := range []string{"Thing", "Location", "Observation"} {
		p, err := s.Structural(et)
		if err != nil {
			t.Fatalf("Structural(%s) failed: %v", et, err)
		}
		if p != predicate.Truth(true) {
			t.Errorf("Structural(%s) = %v, want TRUE", et, p)
		}
	}

	if _, err := s.Structural("Widget"); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestLinkTables(t *testing.T) {
	got := Default().LinkTables()
	want := []LinkTable{
		{Name: "location_historical_location", Columns: []string{"historical_location_id", "location_id"}},
		{Name: "platform_location", Columns: []string{"location_id", "platform_id"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LinkTables = %v, want %v", got, want)
	}
}

func TestColumns(t *testing.T) {
	ds, err := Default().EntityType("Datastream")
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, c := range ds.Columns() {
		if names[c.Name] {
			t.Errorf("duplicate column %s", c.Name)
		}
		names[c.Name] = true
	}
	for _, want := range []string{"id", "unit_symbol", "first_value_at", "last_value_at", "result_time_end", "platform_id", "procedure_id", "phenomenon_id", "aggregation_id"} {
		if !names[want] {
			t.Errorf("missing column %s", want)
		}
	}

	obs, err := Default().EntityType("Observation")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, c := range obs.Columns() {
		if c.Name == "value_quantity" {
			count++
			if c.Type != predicate.KindDecimal {
				t.Errorf("value_quantity type = %s", c.Type)
			}
		}
	}
	if count != 1 {
		t.Errorf("value_quantity listed %d times", count)
	}
}

func TestPeriodResolution(t *testing.T) {
	tests := []struct {
		entity, property string
		start, end       string
	}{
		{"Datastream", "phenomenonTime", "first_value_at", "last_value_at"},
		{"Datastream", "resultTime", "result_time_start", "result_time_end"},
		{"Observation", "phenomenonTime", "phenomenon_time_start", "phenomenon_time_end"},
		{"Observation", "validTime", "valid_time_start", "valid_time_end"},
	}
	for _, tt := range tests {
		t.Run(tt.entity+"/"+tt.property, func(t *testing.T) {
			res, err := Default().Resolve(tt.entity, []string{tt.property})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if !res.Period() {
				t.Fatal("expected a period property")
			}
			if got := res.Column().Name; got != tt.start {
				t.Errorf("start column = %s, want %s", got, tt.start)
			}
			if got := res.EndColumn(); got.Name != tt.end || got.Type != predicate.KindDateTime {
				t.Errorf("end column = %s %s, want %s", got.Name, got.Type, tt.end)
			}
		})
	}

	res, err := Default().Resolve("Observation", []string{"resultTime"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Period() {
		t.Error("Observation resultTime is an instant")
	}
}

func TestNewValidation(t *testing.T) {
	a := &EntityType{Name: "A", Table: "a"}
	if _, err := New(a, &EntityType{Name: "A", Table: "b"}); err == nil {
		t.Error("expected duplicate name error")
	}
	if _, err := New(&EntityType{Name: "A"}); err == nil {
		t.Error("expected missing table error")
	}

	bad := &EntityType{Name: "B", Table: "b", Relations: []Relation{
		{Target: "C", Hop: predicate.Hop{Name: "C", Table: "c"}},
	}}
	if _, err := New(bad); err == nil {
		t.Error("expected unknown target error")
	}

	mismatch := &EntityType{Name: "B", Table: "b", Relations: []Relation{
		{Target: "A", Hop: predicate.Hop{Name: "A", Table: "x"}},
	}}
	if _, err := New(a, mismatch); err == nil {
		t.Error("expected table mismatch error")
	}
}
