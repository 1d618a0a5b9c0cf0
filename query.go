package staquery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hugr-lab/staquery/internal/recovery"
	"github.com/hugr-lab/staquery/literal"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

// Scope restricts a collection to the entities related to one entity, as in
// /Datastreams(7)/Observations.
type Scope struct {
	// EntityType is the singular or plural name of the owning entity type.
	EntityType string
	ID         string
}

// QueryOptions are the query parameters of a collection request.
type QueryOptions struct {
	// Filter is the $filter text. Empty selects every entity.
	Filter string

	// Scope restricts the result to entities related to another entity.
	// OPTIONAL: nil means the whole collection.
	Scope *Scope

	// ID selects a single entity by its identifier.
	// OPTIONAL: empty means no restriction.
	ID string

	// OrderBy is the $orderby text. Empty orders by identifier.
	OrderBy string

	// Top is the $top value.
	// OPTIONAL: nil uses the builder's maximum page size. Larger values are
	// capped at that size.
	Top *int

	// Skip is the $skip value.
	Skip int
}

// OrderKey is one sort key of a query.
type OrderKey struct {
	Operand predicate.Operand
	Desc    bool
}

// Query is a compiled collection request, ready for a storage layer.
type Query struct {
	// EntityType is the canonical name of the queried type.
	EntityType string
	// Table is the storage table of the queried type.
	Table   string
	Where   predicate.Pred
	OrderBy []OrderKey
	Limit   int
	Offset  int
}

// BuildQuery compiles a collection request for entityType.
//
// Error conditions:
//   - Any error of BuildPredicate for opts.Filter
//   - Unknown or unrelated scope entity type
//   - Malformed $orderby, or ordering by a geometry
//   - Negative $top or $skip
func (b *Builder) BuildQuery(entityType string, opts QueryOptions) (*Query, error) {
	where, err := b.BuildPredicate(entityType, opts.Filter)
	if err != nil {
		return nil, err
	}

	q, err := recovery.RecoverToValue(b.logger, "BuildQuery", func() (*Query, error) {
		return b.assemble(entityType, where, opts)
	})
	if err != nil {
		b.logger.Warn("Query rejected",
			"entity_type", entityType,
			"error", err,
		)
		return nil, &Error{EntityType: entityType, Err: err}
	}
	return q, nil
}

func (b *Builder) assemble(entityType string, where predicate.Pred, opts QueryOptions) (*Query, error) {
	t, err := b.schema.EntityType(entityType)
	if err != nil {
		return nil, err
	}
	if opts.Skip < 0 {
		return nil, fmt.Errorf("%w: $skip must not be negative, got %d", ErrInvalidQuery, opts.Skip)
	}
	limit := b.maxPageSize
	if opts.Top != nil {
		if *opts.Top < 0 {
			return nil, fmt.Errorf("%w: $top must not be negative, got %d", ErrInvalidQuery, *opts.Top)
		}
		limit = min(*opts.Top, b.maxPageSize)
	}

	preds := []predicate.Pred{where}
	if opts.Scope != nil {
		scoped, err := b.scope(t, *opts.Scope)
		if err != nil {
			return nil, err
		}
		preds = append(preds, scoped)
	}
	if opts.ID != "" {
		preds = append(preds, keyEquals(&predicate.Column{Name: schema.KeyColumn, Type: predicate.KindString, NotNull: true}, opts.ID))
	}

	order, err := b.orderBy(t, opts.OrderBy)
	if err != nil {
		return nil, err
	}

	return &Query{
		EntityType: t.Name,
		Table:      t.Table,
		Where:      predicate.AndOf(preds...),
		OrderBy:    order,
		Limit:      limit,
		Offset:     opts.Skip,
	}, nil
}

// scope returns the predicate holding for entities of t related to the
// entity identified by s.
func (b *Builder) scope(t *schema.EntityType, s Scope) (predicate.Pred, error) {
	owner, err := b.schema.EntityType(s.EntityType)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, fmt.Errorf("%w: scope %s without id", ErrInvalidQuery, owner.Name)
	}
	for _, r := range t.Relations {
		if r.Target != owner.Name {
			continue
		}
		if !r.Many && !r.Linked() {
			return keyEquals(&predicate.Column{Name: r.ForeignKey, Type: predicate.KindString}, s.ID), nil
		}
		return &predicate.Exists{
			Hop:   r.Hop,
			Where: keyEquals(&predicate.Column{Name: r.TargetKey, Type: predicate.KindString, NotNull: true}, s.ID),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s is not related to %s", ErrInvalidQuery, t.Name, owner.Name)
}

func keyEquals(col *predicate.Column, id string) predicate.Pred {
	return &predicate.Compare{
		Op:    predicate.Eq,
		Left:  col,
		Right: &predicate.Const{Value: id, Type: predicate.KindString},
	}
}

// orderBy compiles $orderby. The identifier is appended as the last key so
// that paging is stable.
func (b *Builder) orderBy(t *schema.EntityType, text string) ([]OrderKey, error) {
	id := &predicate.Column{Name: schema.KeyColumn, Type: predicate.KindString, NotNull: true}
	if strings.TrimSpace(text) == "" {
		return []OrderKey{{Operand: id}}, nil
	}

	items, err := parser.ParseOrderBy(text)
	if err != nil {
		return nil, err
	}
	keys := make([]OrderKey, 0, len(items)+1)
	byID := false
	for _, item := range items {
		op, err := b.compiler.CompileOperand(t.Name, item.Expr)
		if err != nil {
			return nil, err
		}
		if op.Kind() == predicate.KindGeometry {
			return nil, &literal.TypeMismatchError{Context: "$orderby " + item.Expr.String(), Want: "orderable value", Got: op.Kind().String()}
		}
		if c, ok := op.(*predicate.Column); ok && len(c.Path) == 0 && c.Name == schema.KeyColumn {
			byID = true
		}
		keys = append(keys, OrderKey{Operand: op, Desc: item.Desc})
	}
	if !byID {
		keys = append(keys, OrderKey{Operand: id})
	}
	return keys, nil
}

// SQL renders q as a DuckDB SELECT of all columns of the queried table.
func (q *Query) SQL() (string, []any, error) {
	return q.SelectSQL()
}

// SelectSQL renders q as a DuckDB SELECT of the given columns of the
// queried table, or of all its columns when none are given.
func (q *Query) SelectSQL(columns ...string) (string, []any, error) {
	enc := predicate.NewDuckDBEncoder(nil)
	alias := enc.RootAlias()

	where, err := enc.Encode(q.Where)
	if err != nil {
		return "", nil, err
	}
	order := make([]string, 0, len(q.OrderBy))
	for _, k := range q.OrderBy {
		s, err := enc.EncodeOperand(k.Operand)
		if err != nil {
			return "", nil, err
		}
		if k.Desc {
			s += " DESC"
		}
		order = append(order, s)
	}

	selection := alias + ".*"
	if len(columns) > 0 {
		cols := make([]string, len(columns))
		for i, c := range columns {
			cols[i] = alias + "." + predicate.QuoteIdentifier(c)
		}
		selection = strings.Join(cols, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + selection)
	q.from(&sb, enc, where)
	if len(order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return sb.String(), enc.Args(), nil
}

// CountSQL renders the @iot.count query of q, ignoring order and paging.
func (q *Query) CountSQL() (string, []any, error) {
	enc := predicate.NewDuckDBEncoder(nil)
	where, err := enc.Encode(q.Where)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)")
	q.from(&sb, enc, where)
	return sb.String(), enc.Args(), nil
}

func (q *Query) from(sb *strings.Builder, enc *predicate.DuckDBEncoder, where string) {
	sb.WriteString(" FROM " + predicate.QuoteIdentifier(q.Table) + " " + enc.RootAlias())
	for _, j := range enc.Joins() {
		sb.WriteString(" " + j.SQL())
	}
	if where != "TRUE" {
		sb.WriteString(" WHERE " + where)
	}
}

// String renders q for logs.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.EntityType + " where " + predicateString(q.Where))
	if len(q.OrderBy) > 0 {
		sb.WriteString(" order by ")
		for i, k := range q.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k.Operand.String())
			if k.Desc {
				sb.WriteString(" desc")
			}
		}
	}
	sb.WriteString(fmt.Sprintf(" limit %d offset %d", q.Limit, q.Offset))
	return sb.String()
}

func predicateString(p predicate.Pred) string {
	if p == nil {
		return "TRUE"
	}
	return p.String()
}
