package staquery

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hugr-lab/staquery/compiler"
	"github.com/hugr-lab/staquery/expr"
	"github.com/hugr-lab/staquery/internal/recovery"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

// Builder turns client filters into storage predicates and queries.
// A Builder holds no per-call state and is safe for concurrent use.
type Builder struct {
	schema      *schema.Schema
	compiler    *compiler.Compiler
	logger      *slog.Logger
	metrics     *builderMetrics
	maxPageSize int
}

// NewBuilder creates a Builder from config.
//
// Example:
//
//	b, err := staquery.NewBuilder(staquery.Config{})
//	if err != nil {
//	    return err
//	}
//	pred, err := b.BuildPredicate("Locations", "st_equals(location, geography'POINT(52 52)')")
func NewBuilder(config Config) (*Builder, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	config = withDefaults(config)

	metrics := newBuilderMetrics()
	if config.Registerer != nil {
		if err := metrics.register(config.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	b := &Builder{
		schema:      config.Schema,
		compiler:    compiler.New(config.Schema, compiler.WithSRID(config.SRID)),
		logger:      config.Logger,
		metrics:     metrics,
		maxPageSize: config.MaxPageSize,
	}

	b.logger.Debug("Predicate builder created",
		"entity_types", len(config.Schema.EntityTypes()),
		"srid", config.SRID,
		"max_page_size", config.MaxPageSize,
	)
	return b, nil
}

// Schema returns the schema filters are resolved against.
func (b *Builder) Schema() *schema.Schema { return b.schema }

// BuildPredicate returns the predicate selecting the entities of entityType
// that match filter. An empty filter selects every entity; the structural
// predicate of the type is always included.
//
// Errors are *Error values wrapping one of the filter compilation errors
// declared in this package.
func (b *Builder) BuildPredicate(entityType, filter string) (predicate.Pred, error) {
	return b.build(entityType, filter, func() (expr.Node, error) {
		if strings.TrimSpace(filter) == "" {
			return nil, nil
		}
		return parser.Parse(filter)
	})
}

// BuildPredicateExpr is like BuildPredicate for an already parsed filter.
// A nil tree selects every entity.
func (b *Builder) BuildPredicateExpr(entityType string, filter expr.Node) (predicate.Pred, error) {
	text := ""
	if filter != nil {
		text = filter.String()
	}
	return b.build(entityType, text, func() (expr.Node, error) {
		return filter, nil
	})
}

func (b *Builder) build(entityType, text string, tree func() (expr.Node, error)) (predicate.Pred, error) {
	start := time.Now()
	pred, err := recovery.RecoverToValue(b.logger, "BuildPredicate", func() (predicate.Pred, error) {
		return b.compile(entityType, tree)
	})
	b.metrics.observe(b.metricLabel(entityType), start, err)

	if err != nil {
		b.logger.Warn("Filter rejected",
			"entity_type", entityType,
			"filter", text,
			"error", err,
		)
		return nil, &Error{EntityType: entityType, Err: err}
	}

	b.logger.Debug("Filter compiled",
		"entity_type", entityType,
		"filter", text,
		"predicate", pred,
	)
	return pred, nil
}

func (b *Builder) compile(entityType string, tree func() (expr.Node, error)) (predicate.Pred, error) {
	structural, err := b.schema.Structural(entityType)
	if err != nil {
		return nil, err
	}
	n, err := tree()
	if err != nil {
		return nil, err
	}
	if n == nil {
		return structural, nil
	}
	user, err := b.compiler.Compile(entityType, n)
	if err != nil {
		return nil, err
	}
	return predicate.AndOf(structural, user), nil
}

// metricLabel keeps label cardinality bounded by the schema.
func (b *Builder) metricLabel(entityType string) string {
	t, err := b.schema.EntityType(entityType)
	if err != nil {
		return "unknown"
	}
	return t.Name
}
