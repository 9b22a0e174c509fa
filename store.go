package dbx

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Runner is the execution surface shared by Store (per-call pooled
// sessions) and Tx (one pinned session). The generic CRUD functions and the
// fluent builder run against either.
type Runner interface {
	Adapter() Adapter
	Dialect() Dialect
	Codec() *Codec

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...Value) (int64, error)

	// QueryRows runs a statement and returns the decoded rows.
	QueryRows(ctx context.Context, query string, args ...Value) ([]*FieldMap, error)
}

// Store is the query executor: it turns operation descriptors into
// dialect-correct statements, runs them on pooled sessions, and routes rows
// through the entity codec. Business logic is written against Store (or the
// generic functions over Runner), never against a concrete backend.
type Store struct {
	pool  *Pool
	codec *Codec
	log   hclog.Logger
}

// NewStore wraps a pool. WithCodec and WithLogger apply.
func NewStore(pool *Pool, opt ...Option) *Store {
	opts := getOpts(opt...)
	codec := opts.codec
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Store{
		pool:  pool,
		codec: codec,
		log:   opts.logger.Named("store"),
	}
}

func (s *Store) Adapter() Adapter { return s.pool.Adapter() }
func (s *Store) Dialect() Dialect { return s.pool.Adapter().Dialect() }
func (s *Store) Codec() *Codec    { return s.codec }
func (s *Store) Pool() *Pool      { return s.pool }

// Exec acquires a session, runs the statement, and releases the session on
// every path. Broken sessions are evicted instead of reused.
func (s *Store) Exec(ctx context.Context, query string, args ...Value) (int64, error) {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Debug("exec", "session_id", h.ID(), "query", query)
	n, err := h.Session().Exec(ctx, query, args)
	h.Finish(err)
	if err != nil {
		return 0, NewBackendError("exec", err)
	}
	return n, nil
}

// QueryRows acquires a session, runs the query, and releases the session on
// every path.
func (s *Store) QueryRows(ctx context.Context, query string, args ...Value) ([]*FieldMap, error) {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug("query", "session_id", h.ID(), "query", query)
	rows, err := h.Session().Query(ctx, query, args)
	h.Finish(err)
	if err != nil {
		return nil, NewBackendError("query", err)
	}
	return rows, nil
}

// Ping verifies a session can be acquired and answers.
func (s *Store) Ping(ctx context.Context) error {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	err = h.Session().Ping(ctx)
	h.Finish(err)
	return NewConnError("ping", err)
}

// buildFor renders op for r's backend: key-value adapters encode their own
// statement form, SQL backends go through the default builder.
func buildFor(r Runner, op Op) (string, []Value, error) {
	if enc, ok := r.Adapter().(OpEncoder); ok {
		return enc.EncodeOp(op)
	}
	return BuildStatement(r.Dialect(), op)
}

// Insert converts the entity through the codec and inserts one row.
// The returned count is the backend's affected-row count.
func Insert[T any](ctx context.Context, r Runner, table string, entity T) (int64, error) {
	m, err := r.Codec().EntityToMap(entity)
	if err != nil {
		return 0, err
	}
	query, args, err := buildFor(r, Op{Table: table, Kind: OpInsert, Values: m})
	if err != nil {
		return 0, err
	}
	return r.Exec(ctx, query, args...)
}

// Find returns every row matching the conjunctive predicate, decoded into
// T. A nil predicate is an unfiltered scan.
func Find[T any](ctx context.Context, r Runner, table string, where Cond) ([]T, error) {
	query, args, err := buildFor(r, Op{Table: table, Kind: OpSelect, Where: where})
	if err != nil {
		return nil, err
	}
	return Query[T](ctx, r, query, args...)
}

// FindAll is Find without a predicate.
func FindAll[T any](ctx context.Context, r Runner, table string) ([]T, error) {
	return Find[T](ctx, r, table, nil)
}

// FindOne returns the single row matching the predicate, or ErrNotFound.
func FindOne[T any](ctx context.Context, r Runner, table string, where Cond) (T, error) {
	var zero T
	query, args, err := buildFor(r, Op{Table: table, Kind: OpSelect, Where: where, Limit: 1})
	if err != nil {
		return zero, err
	}
	out, err := Query[T](ctx, r, query, args...)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, table)
	}
	return out[0], nil
}

// FindByID is FindOne keyed on the primary-key column.
func FindByID[T any](ctx context.Context, r Runner, table, pk string, id Value) (T, error) {
	return FindOne[T](ctx, r, table, Cond{pk: id})
}

// Update writes every field of the entity to the rows matching the
// predicate. An empty predicate fails with ErrEmptyPredicate.
func Update[T any](ctx context.Context, r Runner, table string, entity T, where Cond) (int64, error) {
	m, err := r.Codec().EntityToMap(entity)
	if err != nil {
		return 0, err
	}
	query, args, err := buildFor(r, Op{Table: table, Kind: OpUpdate, Values: m, Where: where})
	if err != nil {
		return 0, err
	}
	return r.Exec(ctx, query, args...)
}

// UpdateByID updates the single row whose primary-key column matches the
// entity's own value for it. The key column is excluded from the SET list.
func UpdateByID[T any](ctx context.Context, r Runner, table, pk string, entity T) (int64, error) {
	m, err := r.Codec().EntityToMap(entity)
	if err != nil {
		return 0, err
	}
	id, ok := m.Get(pk)
	if !ok {
		return 0, fmt.Errorf("%w: primary key %q", ErrMissingField, pk)
	}
	sets := NewFieldMap()
	err = m.Each(func(name string, v Value) error {
		if name == pk {
			return nil
		}
		return sets.Set(name, v)
	})
	if err != nil {
		return 0, err
	}
	query, args, err := buildFor(r, Op{Table: table, Kind: OpUpdate, Values: sets, Where: Cond{pk: id}})
	if err != nil {
		return 0, err
	}
	return r.Exec(ctx, query, args...)
}

// Delete removes the rows matching the predicate. An empty predicate fails
// with ErrEmptyPredicate.
func Delete(ctx context.Context, r Runner, table string, where Cond) (int64, error) {
	query, args, err := buildFor(r, Op{Table: table, Kind: OpDelete, Where: where})
	if err != nil {
		return 0, err
	}
	return r.Exec(ctx, query, args...)
}

// DeleteByID deletes by primary-key column.
func DeleteByID(ctx context.Context, r Runner, table, pk string, id Value) (int64, error) {
	return Delete(ctx, r, table, Cond{pk: id})
}

// Query is the raw escape hatch: the statement runs exactly as written (in
// the backend's own placeholder style) and every row decodes into T through
// r's codec.
func Query[T any](ctx context.Context, r Runner, query string, args ...Value) ([]T, error) {
	rows, err := r.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		e, err := RowToEntity[T](r.Codec(), row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// QueryOne is Query expecting at most one row; no row is ErrNotFound.
func QueryOne[T any](ctx context.Context, r Runner, query string, args ...Value) (T, error) {
	var zero T
	out, err := Query[T](ctx, r, query, args...)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, ErrNotFound
	}
	return out[0], nil
}
