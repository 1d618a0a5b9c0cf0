package staquery_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hugr-lab/staquery"
)

func TestBuilderMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	b, err := staquery.NewBuilder(staquery.Config{Registerer: reg})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	for _, filter := range []string{"", "name eq 'x'"} {
		if _, err := b.BuildPredicate("Locations", filter); err != nil {
			t.Fatalf("BuildPredicate(%q) failed: %v", filter, err)
		}
	}
	if _, err := b.BuildPredicate("Location", "colour eq 'red'"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := b.BuildPredicate("Widgets", ""); err == nil {
		t.Fatal("expected error")
	}

	expected := `
# HELP staquery_predicate_builds_total Total number of predicate builds by entity type and outcome
# TYPE staquery_predicate_builds_total counter
staquery_predicate_builds_total{entity_type="Location",outcome="rejected"} 1
staquery_predicate_builds_total{entity_type="Location",outcome="success"} 2
staquery_predicate_builds_total{entity_type="unknown",outcome="rejected"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "staquery_predicate_builds_total"); err != nil {
		t.Error(err)
	}

	n, err := testutil.GatherAndCount(reg, "staquery_predicate_build_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestBuildersShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := staquery.NewBuilder(staquery.Config{Registerer: reg})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	second, err := staquery.NewBuilder(staquery.Config{Registerer: reg})
	if err != nil {
		t.Fatalf("second NewBuilder failed: %v", err)
	}

	for _, b := range []*staquery.Builder{first, second} {
		if _, err := b.BuildPredicate("Things", ""); err != nil {
			t.Fatalf("BuildPredicate failed: %v", err)
		}
	}

	expected := `
# HELP staquery_predicate_builds_total Total number of predicate builds by entity type and outcome
# TYPE staquery_predicate_builds_total counter
staquery_predicate_builds_total{entity_type="Thing",outcome="success"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "staquery_predicate_builds_total"); err != nil {
		t.Error(err)
	}
}
