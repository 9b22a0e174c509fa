package dbx

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Tx is a transaction scope: one pooled session with an open transaction,
// exclusively owned until Commit or Rollback. It implements Runner, so the
// generic CRUD functions and the builder work inside a transaction
// unchanged. Nested scopes on the same Tx are not supported.
type Tx struct {
	h     *Handle
	ad    Adapter
	codec *Codec
	log   hclog.Logger
	done  bool
}

// Begin acquires a session and opens a transaction on it. The caller owns
// the returned Tx and must finish it with Commit or Rollback; prefer
// WithinTx, which guarantees that on every exit path.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.Session().Begin(ctx); err != nil {
		h.Finish(err)
		return nil, NewBackendError("begin", err)
	}
	s.log.Debug("transaction begun", "session_id", h.ID())
	return &Tx{h: h, ad: s.pool.Adapter(), codec: s.codec, log: s.log}, nil
}

// WithinTx runs fn inside a transaction scope: commit on a nil return,
// rollback on error or panic (the panic is re-raised), and release of the
// underlying session in every case. Rollback completes before any error
// propagates out, so no partial effect of the scope remains observable.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return multierror.Append(err, rbErr).ErrorOrNil()
		}
		return err
	}
	return tx.Commit(ctx)
}

func (t *Tx) Adapter() Adapter { return t.ad }
func (t *Tx) Dialect() Dialect { return t.ad.Dialect() }
func (t *Tx) Codec() *Codec    { return t.codec }

// Exec runs a statement on the transaction's pinned session.
func (t *Tx) Exec(ctx context.Context, query string, args ...Value) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	t.log.Debug("tx exec", "session_id", t.h.ID(), "query", query)
	n, err := t.h.Session().Exec(ctx, query, args)
	if err != nil {
		return 0, NewBackendError("tx exec", err)
	}
	return n, nil
}

// QueryRows runs a query on the transaction's pinned session.
func (t *Tx) QueryRows(ctx context.Context, query string, args ...Value) ([]*FieldMap, error) {
	if t.done {
		return nil, ErrTxDone
	}
	t.log.Debug("tx query", "session_id", t.h.ID(), "query", query)
	rows, err := t.h.Session().Query(ctx, query, args)
	if err != nil {
		return nil, NewBackendError("tx query", err)
	}
	return rows, nil
}

// Commit commits and returns the session to the pool.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.h.Session().Commit(ctx)
	t.h.Finish(err)
	t.log.Debug("transaction committed", "session_id", t.h.ID())
	return NewBackendError("commit", err)
}

// Rollback rolls back and returns the session to the pool.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.h.Session().Rollback(ctx)
	t.h.Finish(err)
	t.log.Debug("transaction rolled back", "session_id", t.h.ID())
	return NewBackendError("rollback", err)
}
