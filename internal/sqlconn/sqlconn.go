// Package sqlconn adapts one database/sql connection to the dbx.Session
// contract. The three SQL backends share this plumbing and differ only in
// how they bind and decode Values.
package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-mizu/dbx"
)

// Binder converts one canonical Value into a driver argument.
type Binder func(v dbx.Value) (any, error)

// Decoder converts one scanned column into a Value. ct is the
// driver-reported column type, for backends whose drivers return the same
// Go type for several column types.
type Decoder func(ct *sql.ColumnType, raw any) (dbx.Value, error)

// Conn wraps a dedicated *sql.Conn. One Conn serves one dbx session, so
// statements on it execute strictly in issuance order.
type Conn struct {
	conn *sql.Conn
	bind Binder
	dec  Decoder
	tx   *sql.Tx
}

// New wraps conn. A nil bind or dec falls back to the defaults.
func New(conn *sql.Conn, bind Binder, dec Decoder) *Conn {
	if bind == nil {
		bind = DefaultBind
	}
	if dec == nil {
		dec = DefaultDecode
	}
	return &Conn{conn: conn, bind: bind, dec: dec}
}

func (c *Conn) Exec(ctx context.Context, query string, args []dbx.Value) (int64, error) {
	bound, err := c.bindArgs(args)
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if c.tx != nil {
		res, err = c.tx.ExecContext(ctx, query, bound...)
	} else {
		res, err = c.conn.ExecContext(ctx, query, bound...)
	}
	if err != nil {
		return 0, classify("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Driver cannot count; the statement itself succeeded.
		return 0, nil
	}
	return n, nil
}

func (c *Conn) Query(ctx context.Context, query string, args []dbx.Value) (out []*dbx.FieldMap, err error) {
	bound, err := c.bindArgs(args)
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, query, bound...)
	} else {
		rows, err = c.conn.QueryContext(ctx, query, bound...)
	}
	if err != nil {
		return nil, classify("query", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = classify("close rows", cerr)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify("columns", err)
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, classify("column types", err)
	}

	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, classify("scan", err)
		}
		m := dbx.NewFieldMap()
		for i, col := range cols {
			v, err := c.dec(cts[i], raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			if err := m.Set(col, v); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("rows", err)
	}
	return out, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("sqlconn: transaction already open on this session")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(context.Context) error {
	if c.tx == nil {
		return dbx.ErrTxDone
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return classify("commit", err)
	}
	return nil
}

func (c *Conn) Rollback(context.Context) error {
	if c.tx == nil {
		return dbx.ErrTxDone
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return classify("rollback", err)
	}
	return nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return dbx.NewConnError("ping", err)
	}
	return nil
}

func (c *Conn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.conn.Close()
}

func (c *Conn) bindArgs(args []dbx.Value) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, v := range args {
		b, err := c.bind(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = b
	}
	return out, nil
}

// DefaultBind maps each Value variant onto the driver type every
// database/sql driver accepts.
func DefaultBind(v dbx.Value) (any, error) {
	switch v.Kind() {
	case dbx.KindNull:
		return nil, nil
	case dbx.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case dbx.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case dbx.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case dbx.KindText:
		s, _ := v.AsText()
		return s, nil
	case dbx.KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case dbx.KindTime:
		t, _ := v.AsTime()
		return t, nil
	}
	return nil, fmt.Errorf("%w: cannot bind %s", dbx.ErrTypeMismatch, v.Kind())
}

// DefaultDecode maps the driver types database/sql hands back onto Value
// variants.
func DefaultDecode(_ *sql.ColumnType, raw any) (dbx.Value, error) {
	switch x := raw.(type) {
	case nil:
		return dbx.Null(), nil
	case bool:
		return dbx.Bool(x), nil
	case int64:
		return dbx.Int(x), nil
	case float64:
		return dbx.Float(x), nil
	case string:
		return dbx.Text(x), nil
	case []byte:
		return dbx.Bytes(x), nil
	case time.Time:
		return dbx.Time(x), nil
	}
	return dbx.Value{}, fmt.Errorf("%w: driver returned %T", dbx.ErrTypeMismatch, raw)
}

// classify separates dead-session failures (which the pool must evict)
// from statement-level ones.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.As(err, &netErr) {
		return dbx.NewConnError(op, err)
	}
	return dbx.NewBackendError(op, err)
}
