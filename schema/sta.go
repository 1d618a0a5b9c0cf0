package schema

import (
	"sort"
	"sync"

	"github.com/hugr-lab/staquery/predicate"
)

// Entity type names.
const (
	Thing              = "Thing"
	Location           = "Location"
	HistoricalLocation = "HistoricalLocation"
	Datastream         = "Datastream"
	Sensor             = "Sensor"
	ObservedProperty   = "ObservedProperty"
	Observation        = "Observation"
	FeatureOfInterest  = "FeatureOfInterest"
)

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the SensorThings schema over the relational layout of the
// 52°North series database.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := New(sensorThings()...)
		if err != nil {
			panic(err)
		}
		defaultSchema = s
	})
	return defaultSchema
}

func sensorThings() []*EntityType {
	return []*EntityType{
		{
			Name: Thing, Plural: "Things", Table: "platform",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("description", "description"),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				linked("Locations", Location, "location", "platform_location", "platform_id", "location_id"),
				backRef("HistoricalLocations", HistoricalLocation, "historical_location", "platform_id"),
				backRef("Datastreams", Datastream, "dataset", "platform_id"),
			},
		},
		{
			Name: Location, Plural: "Locations", Table: "location",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("description", "description"),
				text("encodingType", "encoding_type"),
				value("location", "geom", predicate.KindGeometry),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				linked("Things", Thing, "platform", "platform_location", "location_id", "platform_id"),
				linked("HistoricalLocations", HistoricalLocation, "historical_location", "location_historical_location", "location_id", "historical_location_id"),
			},
		},
		{
			Name: HistoricalLocation, Plural: "HistoricalLocations", Table: "historical_location",
			Properties: []Property{
				id(),
				value("time", "time", predicate.KindDateTime),
			},
			Aliases: iotID,
			Relations: []Relation{
				toOne("Thing", Thing, "platform", "platform_id"),
				linked("Locations", Location, "location", "location_historical_location", "historical_location_id", "location_id"),
			},
		},
		{
			Name: Datastream, Plural: "Datastreams", Table: "dataset",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("description", "description"),
				text("observationType", "observation_type"),
				{
					Name: "unitOfMeasurement",
					Fields: []Property{
						text("name", "unit_name"),
						text("symbol", "unit_symbol"),
						text("definition", "unit_definition"),
					},
				},
				value("observedArea", "observed_area", predicate.KindGeometry),
				period("phenomenonTime", "first_value_at", "last_value_at"),
				period("resultTime", "result_time_start", "result_time_end"),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				toOne("Thing", Thing, "platform", "platform_id"),
				toOne("Sensor", Sensor, "procedure", "procedure_id"),
				toOne("ObservedProperty", ObservedProperty, "phenomenon", "phenomenon_id"),
				backRef("Observations", Observation, "observation", "dataset_id"),
			},
			Hidden: []ColumnDef{
				{Name: "aggregation_id", Type: predicate.KindString},
			},
			// Rows absorbed into an aggregate are storage detail.
			Structural: &predicate.IsNull{Operand: &predicate.Column{Name: "aggregation_id", Type: predicate.KindString}},
		},
		{
			Name: Sensor, Plural: "Sensors", Table: "procedure",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("description", "description"),
				text("encodingType", "description_format"),
				text("metadata", "description_file"),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				backRef("Datastreams", Datastream, "dataset", "procedure_id"),
			},
		},
		{
			Name: ObservedProperty, Plural: "ObservedProperties", Table: "phenomenon",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("definition", "identifier"),
				text("description", "description"),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				backRef("Datastreams", Datastream, "dataset", "phenomenon_id"),
			},
		},
		{
			Name: Observation, Plural: "Observations", Table: "observation",
			Properties: []Property{
				id(),
				period("phenomenonTime", "phenomenon_time_start", "phenomenon_time_end"),
				value("resultTime", "result_time", predicate.KindDateTime),
				period("validTime", "valid_time_start", "valid_time_end"),
				{
					Name:   "result",
					Column: "value_quantity",
					Type:   predicate.KindDecimal,
					Variants: map[predicate.Kind]string{
						predicate.KindDecimal: "value_quantity",
						predicate.KindInteger: "value_quantity",
						predicate.KindString:  "value_text",
						predicate.KindBoolean: "value_boolean",
					},
				},
				document("parameters", "parameters"),
			},
			Aliases: iotID,
			Relations: []Relation{
				toOne("Datastream", Datastream, "dataset", "dataset_id"),
				toOne("FeatureOfInterest", FeatureOfInterest, "feature", "feature_id"),
			},
		},
		{
			Name: FeatureOfInterest, Plural: "FeaturesOfInterest", Table: "feature",
			Properties: []Property{
				id(),
				text("name", "name"),
				text("description", "description"),
				text("encodingType", "encoding_type"),
				value("feature", "geom", predicate.KindGeometry),
				document("properties", "properties"),
			},
			Aliases: iotID,
			Relations: []Relation{
				backRef("Observations", Observation, "observation", "feature_id"),
			},
		},
	}
}

var iotID = map[string]string{"@iot.id": "id"}

func id() Property {
	return Property{Name: "id", Column: KeyColumn, Type: predicate.KindString, NotNull: true}
}

func text(name, column string) Property {
	return value(name, column, predicate.KindString)
}

func document(name, column string) Property {
	return value(name, column, predicate.KindJSON)
}

func value(name, column string, kind predicate.Kind) Property {
	return Property{Name: name, Column: column, Type: kind}
}

func period(name, start, end string) Property {
	return Property{Name: name, Column: start, End: end, Type: predicate.KindDateTime}
}

func toOne(name, target, table, foreignKey string) Relation {
	return Relation{Target: target, Hop: predicate.Hop{
		Name: name, Table: table,
		SourceKey: KeyColumn, TargetKey: KeyColumn,
		ForeignKey: foreignKey,
	}}
}

func backRef(name, target, table, column string) Relation {
	return Relation{Target: target, Hop: predicate.Hop{
		Name: name, Table: table, Many: true,
		SourceKey: KeyColumn, TargetKey: KeyColumn,
		BackRef: column,
	}}
}

func linked(name, target, table, link, source, linkTarget string) Relation {
	return Relation{Target: target, Hop: predicate.Hop{
		Name: name, Table: table, Many: true,
		SourceKey: KeyColumn, TargetKey: KeyColumn,
		LinkTable: link, LinkSource: source, LinkTarget: linkTarget,
	}}
}

// Columns returns the storage columns of t: properties, complex fields,
// result variants, foreign keys and hidden columns, without duplicates.
func (t *EntityType) Columns() []ColumnDef {
	seen := make(map[string]bool)
	var out []ColumnDef
	add := func(name string, kind predicate.Kind) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, ColumnDef{Name: name, Type: kind})
	}

	for _, p := range t.Properties {
		for _, f := range p.Fields {
			add(f.Column, f.Type)
		}
		add(p.Column, p.Type)
		add(p.End, p.Type)
		kinds := make([]predicate.Kind, 0, len(p.Variants))
		for k := range p.Variants {
			if k != predicate.KindInteger {
				kinds = append(kinds, k)
			}
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			add(p.Variants[k], k)
		}
	}
	for _, r := range t.Relations {
		if !r.Many {
			add(r.ForeignKey, predicate.KindString)
		}
	}
	for _, h := range t.Hidden {
		add(h.Name, h.Type)
	}
	return out
}
