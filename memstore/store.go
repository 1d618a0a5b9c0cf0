// Package memstore is an in-memory entity store that executes compiled
// queries by evaluating their predicates row by row. It follows the null
// semantics of the SQL storage, so it serves as the reference when checking
// compiled filters.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hugr-lab/staquery"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

// Row is a stored entity keyed by storage column name.
type Row map[string]any

// Store holds the rows of every table of a schema. It is safe for
// concurrent use.
type Store struct {
	schema *schema.Schema

	mu     sync.RWMutex
	tables map[string]*table
	links  map[string][]Row
}

type table struct {
	columns map[string]bool
	ids     []string
	rows    map[string]*record
}

// record is a row as seen by predicate evaluation.
type record struct {
	store  *Store
	values Row
}

var _ predicate.Row = (*record)(nil)

// New creates an empty store for s. A nil schema means schema.Default().
func New(s *schema.Schema) *Store {
	if s == nil {
		s = schema.Default()
	}
	st := &Store{
		schema: s,
		tables: make(map[string]*table),
		links:  make(map[string][]Row),
	}
	for _, t := range s.EntityTypes() {
		cols := make(map[string]bool)
		for _, c := range t.Columns() {
			cols[c.Name] = true
		}
		st.tables[t.Table] = &table{columns: cols, rows: make(map[string]*record)}
	}
	for _, l := range s.LinkTables() {
		st.links[l.Name] = nil
	}
	return st
}

// Insert stores a row of entityType and returns its identifier. A row
// without identifier gets a random UUID.
//
// Error conditions:
//   - Unknown entity type
//   - Columns the entity type does not store
//   - Duplicate identifier
func (s *Store) Insert(entityType string, row Row) (string, error) {
	t, err := s.schema.EntityType(entityType)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.tables[t.Table]
	values := make(Row, len(row)+1)
	for k, v := range row {
		if !tbl.columns[k] {
			return "", fmt.Errorf("memstore: %s has no column %q", t.Name, k)
		}
		values[k] = v
	}

	id, _ := values[schema.KeyColumn].(string)
	if id == "" {
		id = uuid.NewString()
		values[schema.KeyColumn] = id
	}
	if _, dup := tbl.rows[id]; dup {
		return "", fmt.Errorf("memstore: duplicate %s id %q", t.Name, id)
	}

	tbl.ids = append(tbl.ids, id)
	tbl.rows[id] = &record{store: s, values: values}
	return id, nil
}

// Link relates the entity id of entityType to the entity targetID through
// the navigation property relation. To-one relations set the foreign key,
// back references set the foreign key of the target, and many-to-many
// relations add a link table row.
func (s *Store) Link(entityType, id, relation, targetID string) error {
	t, err := s.schema.EntityType(entityType)
	if err != nil {
		return err
	}
	r, ok := t.Relation(relation)
	if !ok {
		return &schema.UnknownPropertyError{EntityType: t.Name, Segment: relation, Path: []string{relation}, Reason: "not a navigation property"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.tables[t.Table].rows[id]
	if !ok {
		return fmt.Errorf("memstore: %s %q not found", t.Name, id)
	}
	dst, ok := s.tables[r.Table].rows[targetID]
	if !ok {
		return fmt.Errorf("memstore: %s %q not found", r.Target, targetID)
	}

	switch {
	case r.Linked():
		s.links[r.LinkTable] = append(s.links[r.LinkTable], Row{
			r.LinkSource: src.values[r.SourceKey],
			r.LinkTarget: dst.values[r.TargetKey],
		})
	case r.Many:
		dst.values[r.BackRef] = src.values[r.SourceKey]
	default:
		src.values[r.ForeignKey] = dst.values[r.TargetKey]
	}
	return nil
}

// Get returns a copy of the row of entityType with the given identifier.
func (s *Store) Get(entityType, id string) (Row, bool) {
	t, err := s.schema.EntityType(entityType)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tables[t.Table].rows[id]
	if !ok {
		return nil, false
	}
	return rec.copy(), true
}

// Find returns the rows selected by q, ordered and paged.
func (s *Store) Find(ctx context.Context, q *staquery.Query) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := sortRecords(matched, q.OrderBy); err != nil {
		return nil, err
	}

	if q.Offset >= len(matched) {
		return []Row{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]Row, len(matched))
	for i, rec := range matched {
		out[i] = rec.copy()
	}
	return out, nil
}

// Count returns the number of rows selected by q, ignoring paging.
func (s *Store) Count(ctx context.Context, q *staquery.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *Store) match(ctx context.Context, q *staquery.Query) ([]*record, error) {
	tbl, ok := s.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", q.Table)
	}
	var out []*record
	for _, id := range tbl.ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := tbl.rows[id]
		ok, err := predicate.Evaluate(q.Where, rec)
		if err != nil {
			return nil, fmt.Errorf("memstore: evaluate %s: %w", id, err)
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// sortRecords orders records by keys. Nulls sort last in both directions.
func sortRecords(recs []*record, keys []staquery.OrderKey) error {
	if len(keys) == 0 {
		return nil
	}
	values := make(map[*record][]any, len(recs))
	for _, rec := range recs {
		vals := make([]any, len(keys))
		for i, k := range keys {
			v, err := predicate.EvaluateOperand(k.Operand, rec)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		values[rec] = vals
	}

	var sortErr error
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := values[recs[i]], values[recs[j]]
		for n, k := range keys {
			switch {
			case a[n] == nil && b[n] == nil:
				continue
			case a[n] == nil:
				return false
			case b[n] == nil:
				return true
			}
			c, err := predicate.CompareValues(a[n], b[n])
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

func (r *record) Field(column string) any { return r.values[column] }

// Follow returns the rows related through h. Callers hold the store lock.
func (r *record) Follow(h predicate.Hop) []predicate.Row {
	s := r.store
	target, ok := s.tables[h.Table]
	if !ok {
		return nil
	}

	switch {
	case h.Linked():
		key := r.values[h.SourceKey]
		var out []predicate.Row
		for _, l := range s.links[h.LinkTable] {
			if l[h.LinkSource] != key {
				continue
			}
			id, _ := l[h.LinkTarget].(string)
			if rec, ok := target.rows[id]; ok {
				out = append(out, rec)
			}
		}
		return out

	case h.Many:
		key := r.values[h.SourceKey]
		var out []predicate.Row
		for _, id := range target.ids {
			rec := target.rows[id]
			if rec.values[h.BackRef] == key {
				out = append(out, rec)
			}
		}
		return out

	default:
		fk, _ := r.values[h.ForeignKey].(string)
		if rec, ok := target.rows[fk]; ok {
			return []predicate.Row{rec}
		}
		return nil
	}
}

func (r *record) copy() Row {
	out := make(Row, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
