// Package duckstore stores SensorThings entities in DuckDB and executes
// compiled queries as SQL. Geometry columns require the DuckDB spatial
// extension, which Open installs and loads unless Config.NoSpatial is set.
package duckstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery"
	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

// Row is an entity keyed by storage column name. Geometry values are
// orb.Geometry; JSON columns take any value encoding/json accepts.
type Row map[string]any

// Config contains configuration for a Store.
type Config struct {
	// DSN is the DuckDB data source name.
	// OPTIONAL: Empty opens an in-memory database.
	DSN string

	// Schema describes the stored entity types.
	// OPTIONAL: Uses schema.Default() if nil.
	Schema *schema.Schema

	// Logger for executed statements.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// NoSpatial opens the database without the spatial extension. Geometry
	// columns are created as BLOB, geometry values cannot be inserted and
	// spatial filters fail when executed.
	NoSpatial bool
}

// Store is a DuckDB database holding the tables of a schema.
type Store struct {
	db      *sql.DB
	schema  *schema.Schema
	logger  *slog.Logger
	spatial bool
}

// Open opens the database, loads the spatial extension and creates the
// tables of the schema when missing.
func Open(ctx context.Context, config Config) (*Store, error) {
	s := &Store{schema: config.Schema, logger: config.Logger, spatial: !config.NoSpatial}
	if s.schema == nil {
		s.schema = schema.Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	db, err := sql.Open("duckdb", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	s.db = db

	if s.spatial {
		for _, stmt := range []string{"INSTALL spatial", "LOAD spatial"} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("spatial extension: %s: %w", stmt, err)
			}
		}
	}
	for _, stmt := range ddl(s.schema, s.spatial) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	s.logger.Debug("DuckDB store opened",
		"dsn", config.DSN,
		"entity_types", len(s.schema.EntityTypes()),
		"spatial", s.spatial,
	)
	return s, nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DDL returns the CREATE TABLE statements for the entity and link tables
// of sch.
func DDL(sch *schema.Schema) []string {
	return ddl(sch, true)
}

func ddl(sch *schema.Schema, spatial bool) []string {
	var out []string
	for _, t := range sch.EntityTypes() {
		cols := make([]string, 0, len(t.Columns()))
		for _, c := range t.Columns() {
			typ := c.Type.SQLType()
			if c.Type == predicate.KindGeometry && !spatial {
				typ = "BLOB"
			}
			def := predicate.QuoteIdentifier(c.Name) + " " + typ
			if c.Name == schema.KeyColumn {
				def += " PRIMARY KEY"
			}
			cols = append(cols, def)
		}
		out = append(out, "CREATE TABLE IF NOT EXISTS "+predicate.QuoteIdentifier(t.Table)+
			" ("+strings.Join(cols, ", ")+")")
	}
	for _, l := range sch.LinkTables() {
		cols := make([]string, len(l.Columns))
		for i, c := range l.Columns {
			cols[i] = predicate.QuoteIdentifier(c) + " VARCHAR NOT NULL"
		}
		out = append(out, "CREATE TABLE IF NOT EXISTS "+predicate.QuoteIdentifier(l.Name)+
			" ("+strings.Join(cols, ", ")+")")
	}
	return out
}

// Insert stores a row of entityType and returns its identifier. A row
// without identifier gets a random UUID.
func (s *Store) Insert(ctx context.Context, entityType string, row Row) (string, error) {
	t, err := s.schema.EntityType(entityType)
	if err != nil {
		return "", err
	}
	kinds := make(map[string]predicate.Kind)
	for _, c := range t.Columns() {
		kinds[c.Name] = c.Type
	}

	values := make(Row, len(row)+1)
	for k, v := range row {
		if _, ok := kinds[k]; !ok {
			return "", fmt.Errorf("duckstore: %s has no column %q", t.Name, k)
		}
		values[k] = v
	}
	id, _ := values[schema.KeyColumn].(string)
	if id == "" {
		id = uuid.NewString()
		values[schema.KeyColumn] = id
	}

	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = predicate.QuoteIdentifier(name)
		if kinds[name] == predicate.KindGeometry && values[name] != nil && !s.spatial {
			return "", fmt.Errorf("duckstore: %s.%s: geometry requires the spatial extension", t.Name, name)
		}
		ph, arg, err := bind(kinds[name], values[name])
		if err != nil {
			return "", fmt.Errorf("duckstore: %s.%s: %w", t.Name, name, err)
		}
		placeholders[i], args[i] = ph, arg
	}

	stmt := "INSERT INTO " + predicate.QuoteIdentifier(t.Table) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("duckstore: insert %s: %w", t.Name, err)
	}
	return id, nil
}

// bind returns the placeholder and argument for a column value.
func bind(kind predicate.Kind, v any) (string, any, error) {
	if v == nil {
		return "?", nil, nil
	}
	switch kind {
	case predicate.KindGeometry:
		g, ok := v.(orb.Geometry)
		if !ok {
			return "", nil, fmt.Errorf("expected orb.Geometry, got %T", v)
		}
		data, err := geom.EncodeWKB(g)
		if err != nil {
			return "", nil, err
		}
		return "ST_GeomFromWKB(?)", data, nil
	case predicate.KindJSON:
		if text, ok := v.(string); ok {
			return "?", text, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, err
		}
		return "?", string(data), nil
	}
	return "?", v, nil
}

// Link relates the entity id of entityType to targetID through relation,
// with the same semantics as the in-memory store.
func (s *Store) Link(ctx context.Context, entityType, id, relation, targetID string) error {
	t, err := s.schema.EntityType(entityType)
	if err != nil {
		return err
	}
	r, ok := t.Relation(relation)
	if !ok {
		return &schema.UnknownPropertyError{EntityType: t.Name, Segment: relation, Path: []string{relation}, Reason: "not a navigation property"}
	}

	var stmt string
	var args []any
	switch {
	case r.Linked():
		stmt = "INSERT INTO " + predicate.QuoteIdentifier(r.LinkTable) +
			" (" + predicate.QuoteIdentifier(r.LinkSource) + ", " + predicate.QuoteIdentifier(r.LinkTarget) + ") VALUES (?, ?)"
		args = []any{id, targetID}
	case r.Many:
		stmt = "UPDATE " + predicate.QuoteIdentifier(r.Table) +
			" SET " + predicate.QuoteIdentifier(r.BackRef) + " = ? WHERE " + predicate.QuoteIdentifier(r.TargetKey) + " = ?"
		args = []any{id, targetID}
	default:
		stmt = "UPDATE " + predicate.QuoteIdentifier(t.Table) +
			" SET " + predicate.QuoteIdentifier(r.ForeignKey) + " = ? WHERE " + predicate.QuoteIdentifier(schema.KeyColumn) + " = ?"
		args = []any{targetID, id}
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("duckstore: link %s.%s: %w", t.Name, relation, err)
	}
	return nil
}

// IDs returns the identifiers of the entities selected by q, in query
// order.
func (s *Store) IDs(ctx context.Context, q *staquery.Query) ([]string, error) {
	stmt, args, err := q.SelectSQL(schema.KeyColumn)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Executing query", "entity_type", q.EntityType, "sql", stmt)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("duckstore: query %s: %w", q.EntityType, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of entities selected by q, ignoring paging.
func (s *Store) Count(ctx context.Context, q *staquery.Query) (int, error) {
	stmt, args, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Executing count", "entity_type", q.EntityType, "sql", stmt)

	var n int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckstore: count %s: %w", q.EntityType, err)
	}
	return n, nil
}
