package dbx

import (
	"context"
	"sync"
	"testing"
)

// fakeAdapter is an in-memory backend for pool, store and transaction
// tests. Sessions record every operation in order; failures are injected
// through the adapter's error fields.
type fakeAdapter struct {
	mu       sync.Mutex
	opened   int
	closedN  int
	openErr  error
	execErr  error
	queryErr error
	rows     []*FieldMap
	sessions []*fakeSession
}

func (a *fakeAdapter) Name() string { return "fake" }

func (a *fakeAdapter) Dialect() Dialect {
	return Dialect{Placeholder: PlaceholderQuestion}
}

func (a *fakeAdapter) Open(ctx context.Context, cfg Config) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openErr != nil {
		return nil, a.openErr
	}
	a.opened++
	s := &fakeSession{ad: a}
	a.sessions = append(a.sessions, s)
	return s, nil
}

func (a *fakeAdapter) openedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened
}

func (a *fakeAdapter) closedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closedN
}

type fakeSession struct {
	ad      *fakeAdapter
	ops     []string
	queries []string
	args    [][]Value
	closed  bool
}

func (s *fakeSession) Exec(ctx context.Context, query string, args []Value) (int64, error) {
	s.ops = append(s.ops, "exec")
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	if err := s.ad.execErr; err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *fakeSession) Query(ctx context.Context, query string, args []Value) ([]*FieldMap, error) {
	s.ops = append(s.ops, "query")
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	if err := s.ad.queryErr; err != nil {
		return nil, err
	}
	return s.ad.rows, nil
}

func (s *fakeSession) Begin(context.Context) error {
	s.ops = append(s.ops, "begin")
	return nil
}

func (s *fakeSession) Commit(context.Context) error {
	s.ops = append(s.ops, "commit")
	return nil
}

func (s *fakeSession) Rollback(context.Context) error {
	s.ops = append(s.ops, "rollback")
	return nil
}

func (s *fakeSession) Ping(context.Context) error { return nil }

func (s *fakeSession) Close() error {
	s.closed = true
	s.ad.mu.Lock()
	s.ad.closedN++
	s.ad.mu.Unlock()
	return nil
}

func newFakePool(t *testing.T, maxConns int, opt ...Option) (*Pool, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{}
	p, err := NewPool(ad, Config{MaxConns: maxConns}, opt...)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, ad
}

func newFakeStore(t *testing.T, maxConns int, opt ...Option) (*Store, *fakeAdapter) {
	t.Helper()
	p, ad := newFakePool(t, maxConns)
	return NewStore(p, opt...), ad
}
