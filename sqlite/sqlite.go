// Package sqlite provides the SQLite backend adapter, backed by the CGo-free
// modernc.org driver. Config.Database is the database file path; in-memory
// databases do not survive across pooled sessions, so use a file path (a
// temp file in tests) instead of ":memory:".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-mizu/dbx"
	"github.com/go-mizu/dbx/internal/sqlconn"
)

// Adapter implements dbx.Adapter for SQLite.
type Adapter struct {
	mu sync.Mutex
	db *sql.DB
}

// New returns the SQLite adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return "sqlite" }

func (a *Adapter) Dialect() dbx.Dialect {
	return dbx.Dialect{
		Placeholder:    dbx.PlaceholderQuestion,
		Quote:          '"',
		TextTimestamps: true,
	}
}

// Open hands out one dedicated connection from a lazily-opened shared
// handle. SQLite serializes writers internally; the busy timeout keeps
// concurrent pooled sessions from failing fast on lock contention.
func (a *Adapter) Open(ctx context.Context, cfg dbx.Config) (dbx.Session, error) {
	a.mu.Lock()
	if a.db == nil {
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Database)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			a.mu.Unlock()
			return nil, dbx.NewConnError("open", err)
		}
		a.db = db
	}
	db := a.db
	a.mu.Unlock()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, dbx.NewConnError("open", err)
	}
	return sqlconn.New(conn, bind, decode), nil
}

// Close releases the shared database handle. The pool calls it on shutdown.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// bind stores booleans as 0/1 integers and timestamps as RFC 3339 text,
// matching what SQLite's type system can round-trip.
func bind(v dbx.Value) (any, error) {
	switch v.Kind() {
	case dbx.KindBool:
		b, _ := v.AsBool()
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case dbx.KindTime:
		t, _ := v.AsTime()
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return sqlconn.DefaultBind(v)
}

// decode turns declared TIMESTAMP/DATETIME columns back into time Values;
// everything else follows the default mapping. Callers that declare
// booleans as INTEGER use the IntBool field codec on decode.
func decode(ct *sql.ColumnType, raw any) (dbx.Value, error) {
	if s, ok := raw.(string); ok && isTimeColumn(ct) {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return dbx.Value{}, fmt.Errorf("%w: parse timestamp: %v", dbx.ErrTypeMismatch, err)
		}
		return dbx.Time(t), nil
	}
	return sqlconn.DefaultDecode(ct, raw)
}

func isTimeColumn(ct *sql.ColumnType) bool {
	if ct == nil {
		return false
	}
	name := strings.ToUpper(ct.DatabaseTypeName())
	return strings.Contains(name, "TIMESTAMP") || strings.Contains(name, "DATETIME")
}
