package dbx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Builder constructs one statement fluently. Conditions are written with
// '?' placeholders regardless of backend; the active dialect rewrites them
// when the statement is built:
//
//	users, err := dbx.All[User](ctx, store.Table("users").
//		Select("id", "email").
//		Where("age > ?", dbx.Int(18)).
//		OrderBy("id").
//		Limit(10))
//
// A Builder is single-use; build errors are collected and surfaced by
// Build/Exec/All rather than at each chained call.
type Builder struct {
	r       Runner
	kind    OpKind
	table   string
	columns []string
	setCols []string
	setVals []Value
	wheres  []string
	args    []Value
	joins   []string
	orderBy []string
	groupBy []string
	having  []string
	limit   int
	offset  int
	err     error
}

// Table starts a builder for the given table; the default operation is a
// SELECT *.
func (s *Store) Table(name string) *Builder { return newBuilder(s, name) }

// Table starts a builder running inside the transaction.
func (t *Tx) Table(name string) *Builder { return newBuilder(t, name) }

func newBuilder(r Runner, table string) *Builder {
	b := &Builder{r: r, kind: OpSelect, table: table}
	if table == "" {
		b.err = fmt.Errorf("dbx: builder: empty table name")
	}
	return b
}

// Select narrows the column list; without it the statement selects *.
func (b *Builder) Select(columns ...string) *Builder {
	b.kind = OpSelect
	b.columns = columns
	return b
}

// Update turns the builder into an UPDATE; pair with Set and Where.
func (b *Builder) Update() *Builder {
	b.kind = OpUpdate
	return b
}

// Delete turns the builder into a DELETE; pair with Where.
func (b *Builder) Delete() *Builder {
	b.kind = OpDelete
	return b
}

// Set adds one SET pair for an UPDATE.
func (b *Builder) Set(column string, v Value) *Builder {
	b.setCols = append(b.setCols, column)
	b.setVals = append(b.setVals, v)
	return b
}

// Where adds a condition written with '?' placeholders. Multiple calls are
// joined with AND.
func (b *Builder) Where(expr string, args ...Value) *Builder {
	if n := countPlaceholders(expr); n != len(args) {
		b.err = fmt.Errorf("dbx: builder: condition %q wants %d args, got %d",
			expr, n, len(args))
		return b
	}
	b.wheres = append(b.wheres, expr)
	b.args = append(b.args, args...)
	return b
}

// WhereEq adds the conjunctive equality predicate.
func (b *Builder) WhereEq(where Cond) *Builder {
	for _, k := range sortedKeys(where) {
		v := where[k]
		if v.IsNull() {
			b.wheres = append(b.wheres, k+" IS NULL")
			continue
		}
		b.wheres = append(b.wheres, k+" = ?")
		b.args = append(b.args, v)
	}
	return b
}

// Join adds an inner join.
func (b *Builder) Join(table, on string) *Builder {
	b.joins = append(b.joins, "JOIN "+table+" ON "+on)
	return b
}

// LeftJoin adds a left outer join.
func (b *Builder) LeftJoin(table, on string) *Builder {
	b.joins = append(b.joins, "LEFT JOIN "+table+" ON "+on)
	return b
}

func (b *Builder) OrderBy(exprs ...string) *Builder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// Having adds a HAVING condition written with '?' placeholders.
func (b *Builder) Having(expr string, args ...Value) *Builder {
	if n := countPlaceholders(expr); n != len(args) {
		b.err = fmt.Errorf("dbx: builder: having %q wants %d args, got %d",
			expr, n, len(args))
		return b
	}
	b.having = append(b.having, expr)
	b.args = append(b.args, args...)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Build renders the statement in the runner's dialect and returns it with
// the bound values in placeholder order. Update and Delete without a
// condition fail with ErrEmptyPredicate.
func (b *Builder) Build() (string, []Value, error) {
	if b.err != nil {
		return "", nil, b.err
	}

	var sb strings.Builder
	var args []Value

	switch b.kind {
	case OpSelect:
		sb.WriteString("SELECT ")
		if len(b.columns) == 0 {
			sb.WriteString("*")
		} else {
			sb.WriteString(strings.Join(b.columns, ", "))
		}
		sb.WriteString(" FROM ")
		sb.WriteString(b.table)
		if len(b.joins) > 0 {
			sb.WriteString(" ")
			sb.WriteString(strings.Join(b.joins, " "))
		}
		if len(b.wheres) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(b.wheres, " AND "))
		}
		if len(b.groupBy) > 0 {
			sb.WriteString(" GROUP BY ")
			sb.WriteString(strings.Join(b.groupBy, ", "))
		}
		if len(b.having) > 0 {
			sb.WriteString(" HAVING ")
			sb.WriteString(strings.Join(b.having, " AND "))
		}
		if len(b.orderBy) > 0 {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(strings.Join(b.orderBy, ", "))
		}
		if b.limit > 0 {
			sb.WriteString(" LIMIT ")
			sb.WriteString(strconv.Itoa(b.limit))
		}
		if b.offset > 0 {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(b.offset))
		}
		args = b.args

	case OpUpdate:
		if len(b.setCols) == 0 {
			return "", nil, fmt.Errorf("dbx: builder: update %q: no SET pairs", b.table)
		}
		if len(b.wheres) == 0 {
			return "", nil, fmt.Errorf("dbx: builder: update %q: %w", b.table, ErrEmptyPredicate)
		}
		sb.WriteString("UPDATE ")
		sb.WriteString(b.table)
		sb.WriteString(" SET ")
		for i, c := range b.setCols {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c)
			sb.WriteString(" = ?")
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
		args = append(append([]Value(nil), b.setVals...), b.args...)

	case OpDelete:
		if len(b.wheres) == 0 {
			return "", nil, fmt.Errorf("dbx: builder: delete %q: %w", b.table, ErrEmptyPredicate)
		}
		sb.WriteString("DELETE FROM ")
		sb.WriteString(b.table)
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
		args = b.args

	default:
		return "", nil, fmt.Errorf("dbx: builder: unsupported operation %s", b.kind)
	}

	return b.r.Dialect().Rewrite(sb.String()), args, nil
}

// Exec builds and runs the statement, reporting affected rows.
func (b *Builder) Exec(ctx context.Context) (int64, error) {
	query, args, err := b.Build()
	if err != nil {
		return 0, err
	}
	return b.r.Exec(ctx, query, args...)
}

// All builds the select and decodes every row into T.
func All[T any](ctx context.Context, b *Builder) ([]T, error) {
	query, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return Query[T](ctx, b.r, query, args...)
}

// First builds the select, forces LIMIT 1, and returns the single row or
// ErrNotFound.
func First[T any](ctx context.Context, b *Builder) (T, error) {
	var zero T
	b.limit = 1
	out, err := All[T](ctx, b)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, b.table)
	}
	return out[0], nil
}
