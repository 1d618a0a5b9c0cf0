// Package schema describes the filterable entity types: their public
// properties, storage columns, navigable relations and structural
// predicates, and resolves property paths against them.
//
// The description is static data. Resolution is a pure function of it and
// is safe for concurrent use.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hugr-lab/staquery/predicate"
)

// KeyColumn is the primary key column of every entity table.
const KeyColumn = "id"

// Property maps a public property name to storage.
type Property struct {
	Name   string
	Column string
	Type   predicate.Kind

	// NotNull marks columns that never hold null.
	NotNull bool

	// Fields are the sub-properties of a complex property, each stored in
	// its own column.
	Fields []Property

	// Variants select the storage column by the kind of value the property
	// is compared with. Column and Type describe the default variant.
	Variants map[predicate.Kind]string

	// End is the column holding the end of a time period. Column holds its
	// start and is what comparisons use.
	End string
}

// Complex reports whether the property has fixed sub-properties.
func (p Property) Complex() bool { return len(p.Fields) > 0 }

// Field returns the sub-property with the given name.
func (p Property) Field(name string) (Property, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Property{}, false
}

// Relation is a navigation property to another entity type.
type Relation struct {
	// Target is the singular name of the related entity type.
	Target string
	predicate.Hop
}

// ColumnDef is a storage column that is not exposed as a property.
type ColumnDef struct {
	Name string
	Type predicate.Kind
}

// EntityType describes one entity type.
type EntityType struct {
	Name   string
	Plural string
	Table  string

	Properties []Property
	Relations  []Relation
	// Aliases map alternative public names to property names.
	Aliases map[string]string
	// Hidden lists storage columns without public name.
	Hidden []ColumnDef

	// Structural is ANDed with every filter on this type. Nil means no
	// restriction.
	Structural predicate.Pred
}

// Property returns the property with the given public name.
func (t *EntityType) Property(name string) (Property, bool) {
	if alias, ok := t.Aliases[name]; ok {
		name = alias
	}
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Relation returns the navigation property with the given name.
func (t *EntityType) Relation(name string) (Relation, bool) {
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// LinkTable is a many-to-many association table.
type LinkTable struct {
	Name    string
	Columns []string
}

// Schema is a set of entity types.
type Schema struct {
	types  []*EntityType
	byName map[string]*EntityType
}

// New builds a schema and checks that relations refer to known types.
func New(types ...*EntityType) (*Schema, error) {
	s := &Schema{byName: make(map[string]*EntityType)}
	for _, t := range types {
		if t.Name == "" || t.Table == "" {
			return nil, fmt.Errorf("schema: entity type without name or table")
		}
		for _, n := range []string{t.Name, t.Plural} {
			if n == "" {
				continue
			}
			if _, dup := s.byName[n]; dup {
				return nil, fmt.Errorf("schema: duplicate entity type name %q", n)
			}
			s.byName[n] = t
		}
		s.types = append(s.types, t)
	}
	for _, t := range types {
		for _, r := range t.Relations {
			target, ok := s.byName[r.Target]
			if !ok {
				return nil, fmt.Errorf("schema: relation %s.%s targets unknown type %q", t.Name, r.Name, r.Target)
			}
			if target.Table != r.Table {
				return nil, fmt.Errorf("schema: relation %s.%s table %q does not match %s", t.Name, r.Name, r.Table, target.Name)
			}
		}
	}
	return s, nil
}

// EntityType returns the type with the given singular or plural name.
func (s *Schema) EntityType(name string) (*EntityType, error) {
	if t, ok := s.byName[name]; ok {
		return t, nil
	}
	return nil, &UnknownEntityTypeError{Name: name}
}

// EntityTypes returns all types in declaration order.
func (s *Schema) EntityTypes() []*EntityType {
	return append([]*EntityType(nil), s.types...)
}

// LinkTables returns the association tables referenced by relations,
// sorted by name.
func (s *Schema) LinkTables() []LinkTable {
	seen := make(map[string]bool)
	var out []LinkTable
	for _, t := range s.types {
		for _, r := range t.Relations {
			if !r.Linked() || seen[r.LinkTable] {
				continue
			}
			seen[r.LinkTable] = true
			cols := []string{r.LinkSource, r.LinkTarget}
			sort.Strings(cols)
			out = append(out, LinkTable{Name: r.LinkTable, Columns: cols})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Structural returns the predicate mandatory for an entity type, or TRUE.
func (s *Schema) Structural(entityType string) (predicate.Pred, error) {
	t, err := s.EntityType(entityType)
	if err != nil {
		return nil, err
	}
	if t.Structural == nil {
		return predicate.Truth(true), nil
	}
	return t.Structural, nil
}

// UnknownEntityTypeError reports an unrecognized root entity type.
type UnknownEntityTypeError struct {
	Name string
}

func (e *UnknownEntityTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Name)
}

// UnknownPropertyError reports a path segment that does not resolve.
type UnknownPropertyError struct {
	EntityType string
	Segment    string
	Path       []string
	Reason     string
}

func (e *UnknownPropertyError) Error() string {
	msg := fmt.Sprintf("unknown property %q on entity type %s", e.Segment, e.EntityType)
	if len(e.Path) > 1 {
		msg += fmt.Sprintf(" in path %q", strings.Join(e.Path, "/"))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
