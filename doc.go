// Package staquery compiles OGC SensorThings $filter expressions into
// storage predicates over the relational layout of a sensor observation
// database.
//
// The staquery package provides the query assembly entry point:
//   - Parsing $filter and $orderby text into expression trees
//   - Resolving public property paths to storage columns and joins
//   - Coercing literals, including ISO-8601 times and WKT/GeoJSON geometries
//   - Compiling to a predicate algebra in negation normal form, so that
//     "not st_equals(...)" selects exactly the rows "st_equals(...)" rejects
//   - Always applying the structural predicate of an entity type
//   - Rendering DuckDB SQL with positional parameters
//
// # Quick Start
//
//	b, err := staquery.NewBuilder(staquery.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	q, err := b.BuildQuery("Locations", staquery.QueryOptions{
//	    Filter:  "not st_equals(location, geography'POINT(30 10)')",
//	    OrderBy: "name desc",
//	})
//	if err != nil {
//	    // err carries a gRPC status; invalid filters map to InvalidArgument
//	    return status.Convert(err).Err()
//	}
//
//	sql, args, err := q.SQL()
//	rows, err := db.QueryContext(ctx, sql, args...)
//
// # Errors
//
// Every rejected filter is reported as an *Error wrapping exactly one of
// UnknownPropertyError, UnknownEntityTypeError, TypeMismatchError,
// GeometryParseError, UnsupportedFunctionError,
// InvalidFunctionArgumentError, DivisionByZeroError or FilterSyntaxError.
// No partial predicate is ever returned. Use errors.As to inspect the cause
// and IsInvalidQuery or Status to classify it.
//
// # Storage
//
// The memstore package evaluates queries in memory with the null semantics
// of SQL and serves as reference storage in tests. The duckstore package
// executes the rendered SQL on DuckDB with the spatial extension.
//
// The stafilter command (cmd/stafilter) prints the SQL a filter compiles to:
//
//	stafilter compile --entity Locations --filter "st_within(location, geography'POINT(1 2)')"
//
// # Concurrency
//
// A Builder keeps no per-call state. BuildPredicate and BuildQuery may be
// called from many goroutines; each call compiles into fresh predicate
// values owned by the caller.
package staquery
