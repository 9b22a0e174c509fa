package dbx

import (
	"errors"
	"testing"
)

func TestBackendErrorWrapping(t *testing.T) {
	inner := errors.New("constraint violated")
	err := NewBackendError("insert", inner)
	if !errors.Is(err, ErrBackend) {
		t.Error("BackendError does not match ErrBackend")
	}
	if !errors.Is(err, inner) {
		t.Error("driver error not reachable through Unwrap")
	}
	if errors.Is(err, ErrConnection) {
		t.Error("backend failure must not look like a connection failure")
	}
}

func TestConnErrorWrapping(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewConnError("open", inner)
	if !errors.Is(err, ErrConnection) {
		t.Error("ConnError does not match ErrConnection")
	}
	if !errors.Is(err, inner) {
		t.Error("driver error not reachable through Unwrap")
	}
}

func TestWrappersPassSentinelsThrough(t *testing.T) {
	conn := NewConnError("exec", errors.New("reset by peer"))
	if got := NewBackendError("exec", conn); got != conn {
		t.Error("NewBackendError re-wrapped a connection failure")
	}
	if got := NewConnError("exec", conn); got != conn {
		t.Error("NewConnError double-wrapped")
	}
	if NewBackendError("x", nil) != nil || NewConnError("x", nil) != nil {
		t.Error("nil error was wrapped")
	}
}
