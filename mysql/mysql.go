// Package mysql provides the MySQL backend adapter over go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/go-mizu/dbx"
	"github.com/go-mizu/dbx/internal/sqlconn"
)

// Adapter implements dbx.Adapter for MySQL.
type Adapter struct {
	mu sync.Mutex
	db *sql.DB
}

// New returns the MySQL adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return "mysql" }

func (a *Adapter) Dialect() dbx.Dialect {
	return dbx.Dialect{
		Placeholder: dbx.PlaceholderQuestion,
		Quote:       '`',
	}
}

func (a *Adapter) Open(ctx context.Context, cfg dbx.Config) (dbx.Session, error) {
	a.mu.Lock()
	if a.db == nil {
		db, err := sql.Open("mysql", dsn(cfg))
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
	return sqlconn.New(conn, nil, decode), nil
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
	mc := gomysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.DBName = cfg.Database
	// parseTime makes DATETIME columns scan as time.Time; UTC keeps
	// timestamps location-free on both directions.
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// decode maps the []byte the driver returns for every textual column type
// onto Text; only genuinely binary columns stay Bytes.
func decode(ct *sql.ColumnType, raw any) (dbx.Value, error) {
	if b, ok := raw.([]byte); ok && isTextColumn(ct) {
		return dbx.Text(string(b)), nil
	}
	return sqlconn.DefaultDecode(ct, raw)
}

func isTextColumn(ct *sql.ColumnType) bool {
	if ct == nil {
		return false
	}
	switch strings.ToUpper(ct.DatabaseTypeName()) {
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT",
		"ENUM", "SET", "JSON", "DECIMAL":
		return true
	}
	return false
}
