package dbx

import (
	"errors"
	"fmt"
)

// Errors returned from this package may be tested against these sentinels
// with errors.Is.
var (
	// ErrConnection indicates the backend could not be reached, or that an
	// established session died mid-operation. Sessions failing with this
	// error are evicted from the pool instead of being reused.
	ErrConnection = errors.New("dbx: connection failure")

	// ErrPoolExhausted is returned by pool acquisition when no session
	// became available before the configured timeout elapsed.
	ErrPoolExhausted = errors.New("dbx: pool exhausted")

	// ErrPoolClosed is returned by acquisition after the pool was closed.
	ErrPoolClosed = errors.New("dbx: pool closed")

	// ErrTypeMismatch indicates a Value variant incompatible with the
	// requested native type or target field. Conversions never coerce.
	ErrTypeMismatch = errors.New("dbx: value kind mismatch")

	// ErrMissingField is returned when decoding a row into an entity and a
	// required field's column is absent from the row.
	ErrMissingField = errors.New("dbx: missing field")

	// ErrUnknownField is returned when a row carries a column the entity
	// does not declare. WithLooseFields downgrades this to a silent drop.
	ErrUnknownField = errors.New("dbx: unknown field")

	// ErrDuplicateField is returned by FieldMap.Set for a key already
	// present in the map.
	ErrDuplicateField = errors.New("dbx: duplicate field")

	// ErrEmptyPredicate is returned when an Update or Delete is built with
	// no predicate. It exists to stop accidental full-table mutation.
	ErrEmptyPredicate = errors.New("dbx: empty predicate on update or delete")

	// ErrNotFound is returned by single-row lookups that matched nothing.
	ErrNotFound = errors.New("dbx: no matching row")

	// ErrTxDone is returned when using a transaction after commit/rollback.
	ErrTxDone = errors.New("dbx: transaction already finished")

	// ErrBackend marks an opaque driver-level failure. The driver's own
	// error stays reachable through errors.As / Unwrap.
	ErrBackend = errors.New("dbx: backend failure")
)

// BackendError wraps a driver-level failure with the operation that hit it.
// It matches ErrBackend under errors.Is while keeping the driver error
// inspectable via Unwrap.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("dbx: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// NewBackendError wraps err for operation op. Errors that already carry a
// dbx sentinel (ErrConnection in particular) pass through untouched so the
// pool's eviction logic keeps seeing them.
func NewBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrBackend) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// ConnError wraps a failure to open or keep a backend session. It matches
// ErrConnection under errors.Is; sessions reporting it are discarded by the
// pool rather than returned to the idle set.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("dbx: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

func (e *ConnError) Is(target error) bool { return target == ErrConnection }

// NewConnError wraps err as a connection failure for operation op.
func NewConnError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) {
		return err
	}
	return &ConnError{Op: op, Err: err}
}
