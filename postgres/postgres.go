// Package postgres provides the PostgreSQL backend adapter over pgx's
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"net/url"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/go-mizu/dbx"
	"github.com/go-mizu/dbx/internal/sqlconn"
)

// Adapter implements dbx.Adapter for PostgreSQL.
type Adapter struct {
	mu sync.Mutex
	db *sql.DB
}

// New returns the PostgreSQL adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return "postgres" }

func (a *Adapter) Dialect() dbx.Dialect {
	return dbx.Dialect{
		Placeholder: dbx.PlaceholderDollar,
		Quote:       '"',
	}
}

func (a *Adapter) Open(ctx context.Context, cfg dbx.Config) (dbx.Session, error) {
	a.mu.Lock()
	if a.db == nil {
		db, err := sql.Open("pgx", dsn(cfg))
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
	// pgx scans booleans, timestamps and text natively, so the defaults
	// round-trip every Value variant unchanged.
	return sqlconn.New(conn, nil, nil), nil
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

func dsn(cfg dbx.Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   cfg.Addr(),
		Path:   "/" + cfg.Database,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}
