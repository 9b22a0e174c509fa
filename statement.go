package dbx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OpKind is the CRUD intent of an Op.
type OpKind int

const (
	OpInsert OpKind = iota
	OpSelect
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpSelect:
		return "select"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "op(" + strconv.Itoa(int(k)) + ")"
}

// Cond is a conjunctive equality predicate: every entry becomes
// "column = ?" joined with AND. Keys are sorted when the statement is
// built, so the same Cond always yields the same statement text.
type Cond map[string]Value

// Op describes one CRUD operation before statement construction. It is
// built per call and discarded after execution.
type Op struct {
	Table   string
	Kind    OpKind
	Values  *FieldMap // insert values / update SET pairs
	Where   Cond      // predicate; nil on Select means unfiltered scan
	Columns []string  // select column list; nil means *
	OrderBy []string
	Limit   int
	Offset  int
}

// BuildStatement renders op as a parameterized statement in d's dialect,
// returning the statement text and the bound values in placeholder order.
//
// Update and Delete with an empty predicate fail with ErrEmptyPredicate;
// an accidental full-table mutation should never leave this function.
func BuildStatement(d Dialect, op Op) (string, []Value, error) {
	if op.Table == "" {
		return "", nil, fmt.Errorf("dbx: build %s: empty table name", op.Kind)
	}
	switch op.Kind {
	case OpInsert:
		return buildInsert(d, op)
	case OpSelect:
		return buildSelect(d, op)
	case OpUpdate:
		return buildUpdate(d, op)
	case OpDelete:
		return buildDelete(d, op)
	}
	return "", nil, fmt.Errorf("dbx: build: unknown operation kind %d", int(op.Kind))
}

func buildInsert(d Dialect, op Op) (string, []Value, error) {
	if op.Values == nil || op.Values.Len() == 0 {
		return "", nil, fmt.Errorf("dbx: build insert: no values")
	}
	keys := op.Values.Keys()
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = d.Ident(k)
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Ident(op.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(d.Placeholders(1, len(keys)), ", "))
	b.WriteString(")")
	return b.String(), op.Values.Values(), nil
}

func buildSelect(d Dialect, op Op) (string, []Value, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(op.Columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, len(op.Columns))
		for i, c := range op.Columns {
			cols[i] = d.Ident(c)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(d.Ident(op.Table))

	args := appendWhere(&b, d, op.Where, 1)

	if len(op.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(op.OrderBy, ", "))
	}
	if op.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(op.Limit))
	}
	if op.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(op.Offset))
	}
	return b.String(), args, nil
}

func buildUpdate(d Dialect, op Op) (string, []Value, error) {
	if op.Values == nil || op.Values.Len() == 0 {
		return "", nil, fmt.Errorf("dbx: build update: no SET values")
	}
	if len(op.Where) == 0 {
		return "", nil, fmt.Errorf("dbx: build update %q: %w", op.Table, ErrEmptyPredicate)
	}
	keys := op.Values.Keys()
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = d.Ident(k) + " = " + d.Placeholder.Format(i+1)
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(d.Ident(op.Table))
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))

	args := op.Values.Values()
	args = append(args, appendWhere(&b, d, op.Where, len(keys)+1)...)
	return b.String(), args, nil
}

func buildDelete(d Dialect, op Op) (string, []Value, error) {
	if len(op.Where) == 0 {
		return "", nil, fmt.Errorf("dbx: build delete %q: %w", op.Table, ErrEmptyPredicate)
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.Ident(op.Table))
	args := appendWhere(&b, d, op.Where, 1)
	return b.String(), args, nil
}

// appendWhere writes the conjunctive WHERE clause (if any) and returns the
// predicate values in the order their placeholders were emitted.
func appendWhere(b *strings.Builder, d Dialect, where Cond, start int) []Value {
	if len(where) == 0 {
		return nil
	}
	keys := sortedKeys(where)

	b.WriteString(" WHERE ")
	args := make([]Value, 0, len(keys))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		v := where[k]
		if v.IsNull() {
			// "= NULL" never matches; the caller means IS NULL.
			b.WriteString(d.Ident(k))
			b.WriteString(" IS NULL")
			continue
		}
		b.WriteString(d.Ident(k))
		b.WriteString(" = ")
		b.WriteString(d.Placeholder.Format(start + len(args)))
		args = append(args, v)
	}
	return args
}

func sortedKeys(c Cond) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
