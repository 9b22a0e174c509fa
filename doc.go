/*
Package dbx is a database-access layer that runs the same CRUD business
logic against heterogeneous backends — embedded SQL, client-server SQL, and
key-value stores — using plain Go structs. No code generation, no schema
declarations: a struct is storable the moment it is declared.

# Overview

Every stored datum passes through a canonical [Value], a closed tagged
union over null, bool, 64-bit int, 64-bit float, text, bytes, and
timestamps. The [Codec] converts structs to and from ordered [FieldMap]
values by reflection, the [Store] builds dialect-correct statements from
operation descriptors, and a per-backend [Adapter] owns the mapping between
Values and the driver's native types. Backends are chosen by constructing
one adapter and injecting it into [NewPool]; business logic sees only the
[Runner] contract.

# Mapping rules

  - Fields bind by `db:"name"` first; otherwise case-insensitive field ←→
    column name. `db:"-"` omits a field.
  - Nested structs can be flattened with `db:",inline"`.
  - Pointer fields are optional: nil encodes to Null, Null decodes to nil.
  - Conversions are strict. A Value variant incompatible with a field fails
    with [ErrTypeMismatch]; nothing truncates or coerces silently.
  - Per-column overrides (e.g. [TextTime] for backends that keep timestamps
    in text columns) are installed with [WithFieldCodec].

# Sessions and pooling

[Pool] bounds the number of live backend sessions. [Pool.Acquire] suspends
on the caller's context; [Pool.AcquireTimeout] blocks for a fixed wait;
both fail with [ErrPoolExhausted] on timeout and never exceed the bound. A
session is owned by exactly one in-flight operation, and statements on it
run in issuance order. Broken sessions are evicted and lazily replaced.

# Errors

Callers get inspectable kinds, not generic failures: every error matches
one of the package sentinels under errors.Is ([ErrConnection],
[ErrPoolExhausted], [ErrTypeMismatch], [ErrMissingField],
[ErrEmptyPredicate], [ErrNotFound], [ErrBackend], …). Nothing retries
internally; retry policy belongs to the caller.

# Usage

	ad := sqlite.New()
	pool, err := dbx.NewPool(ad, dbx.FromEnv())
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := dbx.NewStore(pool)

	type User struct {
		ID    int64  `db:"id"`
		Email string `db:"email"`
		Age   *int64 `db:"age"` // nullable column
	}

	_, err = dbx.Insert(ctx, store, "users", u)
	got, err := dbx.FindByID[User](ctx, store, "users", "id", dbx.Int(1))

	err = store.WithinTx(ctx, func(tx *dbx.Tx) error {
		if _, err := dbx.UpdateByID(ctx, tx, "users", "id", u); err != nil {
			return err // rolled back
		}
		_, err := dbx.Delete(ctx, tx, "audit", dbx.Cond{"user_id": dbx.Int(u.ID)})
		return err
	})

Update and Delete refuse an empty predicate with [ErrEmptyPredicate]; an
unfiltered mutation must be written as raw SQL on purpose.
*/
package dbx
