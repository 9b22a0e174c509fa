package dbx

import "context"

// Adapter is implemented once per backend technology. It owns the mapping
// between Value variants and the backend's native wire types; nothing else
// in the engine knows a backend's type quirks. Exactly one Adapter instance
// is constructed per process and injected into NewPool — never a global.
//
// An adapter that holds resources shared across its sessions (a database
// handle, a client pool) may additionally implement io.Closer; Pool.Close
// invokes it after the sessions are torn down.
type Adapter interface {
	// Name identifies the backend ("sqlite", "postgres", …) for logs.
	Name() string

	// Dialect reports how statements must be rendered for this backend.
	Dialect() Dialect

	// Open establishes one new session. The pool is the only caller.
	Open(ctx context.Context, cfg Config) (Session, error)
}

// Session is one live backend session. A Session is never used by two
// concurrent statements; the pool hands it to exactly one owner at a time,
// and statements issued on it execute in issuance order.
type Session interface {
	// Exec runs a statement that returns no rows and reports the affected
	// row count (drivers that cannot count report 0).
	Exec(ctx context.Context, query string, args []Value) (int64, error)

	// Query runs a statement and decodes every result row into a FieldMap
	// keyed by column name.
	Query(ctx context.Context, query string, args []Value) ([]*FieldMap, error)

	// Begin, Commit and Rollback manage the session's single transaction.
	// Sessions do not support nesting.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Ping verifies the session is still usable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection. Only the pool calls it.
	Close() error
}

// OpEncoder is an optional Adapter capability. Backends whose statement
// form is not SQL (key-value stores) implement it to translate an Op into
// their own statement text; SQL backends rely on the default builder.
type OpEncoder interface {
	EncodeOp(op Op) (string, []Value, error)
}
