package schema

import (
	"github.com/hugr-lab/staquery/predicate"
)

// Resolution is a property path resolved to a storage column.
type Resolution struct {
	// EntityType is the type owning the column.
	EntityType string
	// Hops are the to-one joins from the root type, in order.
	Hops []predicate.Hop
	// Property is the leaf property; for complex properties the field.
	Property Property
	// JSONPath holds the trailing segments addressing a JSON member.
	JSONPath []string
}

// Kind returns the kind of the default column.
func (r *Resolution) Kind() predicate.Kind {
	if len(r.JSONPath) > 0 {
		return predicate.KindJSON
	}
	return r.Property.Type
}

// Polymorphic reports whether the column depends on the compared kind.
func (r *Resolution) Polymorphic() bool { return len(r.Property.Variants) > 0 }

// Column returns the default column operand.
func (r *Resolution) Column() *predicate.Column {
	return r.column(r.Property.Column, r.Property.Type)
}

// Period reports whether the property is a time period with an end column.
func (r *Resolution) Period() bool {
	return r.Property.End != "" && len(r.JSONPath) == 0
}

// EndColumn returns the column holding the end of a period property.
func (r *Resolution) EndColumn() *predicate.Column {
	return r.column(r.Property.End, r.Property.Type)
}

// ColumnFor returns the column variant storing values of kind k.
func (r *Resolution) ColumnFor(k predicate.Kind) (*predicate.Column, bool) {
	name, ok := r.Property.Variants[k]
	if !ok {
		return nil, false
	}
	if k == predicate.KindInteger {
		// integers are stored with decimals
		return r.column(name, predicate.KindDecimal), true
	}
	return r.column(name, k), true
}

func (r *Resolution) column(name string, kind predicate.Kind) *predicate.Column {
	c := &predicate.Column{
		Path:    r.Hops,
		Name:    name,
		Type:    kind,
		NotNull: r.Property.NotNull && len(r.Hops) == 0,
	}
	if len(r.JSONPath) > 0 {
		c.JSONPath = r.JSONPath
	}
	return c
}

// Resolve maps a property path on entityType to its storage column.
//
// Each segment before the property must name a to-one relation of the
// current type. Complex properties take exactly one field segment; JSON
// properties take any number of member segments.
func (s *Schema) Resolve(entityType string, path []string) (*Resolution, error) {
	root, err := s.EntityType(entityType)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, &UnknownPropertyError{EntityType: root.Name, Reason: "empty property path"}
	}

	cur := root
	var hops []predicate.Hop
	for i, seg := range path {
		fail := func(segment, reason string) error {
			return &UnknownPropertyError{EntityType: cur.Name, Segment: segment, Path: path, Reason: reason}
		}

		if rel, ok := cur.Relation(seg); ok {
			if rel.Many {
				return nil, fail(seg, "to-many relations cannot be navigated in a filter")
			}
			if i == len(path)-1 {
				return nil, fail(seg, "relation must be followed by a property")
			}
			hops = append(hops, rel.Hop)
			next, err := s.EntityType(rel.Target)
			if err != nil {
				return nil, err
			}
			cur = next
			continue
		}

		prop, ok := cur.Property(seg)
		if !ok {
			return nil, fail(seg, "")
		}
		rest := path[i+1:]
		res := &Resolution{EntityType: cur.Name, Hops: hops, Property: prop}

		switch {
		case prop.Complex():
			if len(rest) == 0 {
				return nil, fail(seg, "complex property must be followed by a field")
			}
			field, ok := prop.Field(rest[0])
			if !ok {
				return nil, fail(rest[0], "not a field of "+prop.Name)
			}
			if len(rest) > 1 {
				return nil, fail(rest[1], "fields have no members")
			}
			res.Property = field
		case prop.Type == predicate.KindJSON:
			if len(rest) > 0 {
				res.JSONPath = append([]string(nil), rest...)
			}
		case len(rest) > 0:
			return nil, fail(rest[0], prop.Name+" has no members")
		}
		return res, nil
	}

	// unreachable
	return nil, &UnknownPropertyError{EntityType: cur.Name, Path: path}
}
