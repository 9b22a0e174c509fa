// Package redis provides a key-value backend adapter over go-redis. Each
// entity row is one hash at key "<table>:<primary key>", with every field
// stored as a kind-prefixed string so Values round-trip without loss.
//
// The adapter implements the statement encoder capability: inserts and
// primary-key lookups map onto HSET/HGETALL/DEL, and an unfiltered select
// walks the table's key space with SCAN. Predicates on anything other than
// the primary key are not supported.
package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/go-mizu/dbx"
)

const (
	cmdHSet    = "hset"
	cmdHSetX   = "hsetx" // write only if the key already exists
	cmdHGetAll = "hgetall"
	cmdScan    = "scan"
	cmdDel     = "del"
)

// Adapter implements dbx.Adapter and the statement encoder capability for
// Redis.
type Adapter struct {
	pkField string
}

// Option configures the adapter.
type Option func(*Adapter)

// WithPrimaryKey overrides the field treated as the row key. The default
// is "id".
func WithPrimaryKey(field string) Option {
	return func(a *Adapter) { a.pkField = strings.ToLower(field) }
}

// New returns the Redis adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{pkField: "id"}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "redis" }

// Dialect is unused in practice: every statement goes through EncodeOp.
func (a *Adapter) Dialect() dbx.Dialect {
	return dbx.Dialect{Placeholder: dbx.PlaceholderQuestion, Quote: '"'}
}

// Open dials one dedicated client. PoolSize 1 pins the session to a single
// connection so statements keep issuance order.
func (a *Adapter) Open(ctx context.Context, cfg dbx.Config) (dbx.Session, error) {
	db := 0
	if cfg.Database != "" {
		n, err := strconv.Atoi(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("redis: database must be a numeric index, got %q", cfg.Database)
		}
		db = n
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       db,
		PoolSize: 1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, dbx.NewConnError("open", err)
	}
	return &session{client: client}, nil
}

// EncodeOp translates an Op into one of the adapter's internal commands.
// The statement text is "<command> <key or match>", and hash field pairs
// travel as alternating Text args.
func (a *Adapter) EncodeOp(op dbx.Op) (string, []dbx.Value, error) {
	switch op.Kind {
	case dbx.OpInsert:
		return a.encodeWrite(op, true)
	case dbx.OpUpdate:
		if len(op.Where) == 0 {
			return "", nil, dbx.ErrEmptyPredicate
		}
		return a.encodeWrite(op, false)
	case dbx.OpSelect:
		return a.encodeSelect(op)
	case dbx.OpDelete:
		if len(op.Where) == 0 {
			return "", nil, dbx.ErrEmptyPredicate
		}
		pk, err := a.pkFrom(op.Where)
		if err != nil {
			return "", nil, err
		}
		return cmdDel + " " + key(op.Table, pk), nil, nil
	}
	return "", nil, fmt.Errorf("redis: unsupported operation %s", op.Kind)
}

func (a *Adapter) encodeWrite(op dbx.Op, insert bool) (string, []dbx.Value, error) {
	if op.Values == nil || op.Values.Len() == 0 {
		return "", nil, fmt.Errorf("redis: write with no fields")
	}
	var pk string
	if insert {
		pkVal, ok := op.Values.Get(a.pkField)
		if !ok {
			return "", nil, fmt.Errorf("%w: inserts need the %q field", dbx.ErrMissingField, a.pkField)
		}
		var err error
		pk, err = keyText(pkVal)
		if err != nil {
			return "", nil, err
		}
	} else {
		var err error
		pk, err = a.pkFrom(op.Where)
		if err != nil {
			return "", nil, err
		}
	}
	var args []dbx.Value
	_ = op.Values.Each(func(name string, v dbx.Value) error {
		args = append(args, dbx.Text(name), dbx.Text(encodeField(v)))
		return nil
	})
	cmd := cmdHSet
	if !insert {
		// Updates must not upsert: a bare HSET on a missing key would
		// fabricate a partial row without the primary key field.
		cmd = cmdHSetX
	}
	return cmd + " " + key(op.Table, pk), args, nil
}

func (a *Adapter) encodeSelect(op dbx.Op) (string, []dbx.Value, error) {
	if len(op.OrderBy) > 0 {
		return "", nil, fmt.Errorf("redis: ordered selects are not supported")
	}
	if len(op.Where) == 0 {
		return cmdScan + " " + op.Table + ":*", nil, nil
	}
	pk, err := a.pkFrom(op.Where)
	if err != nil {
		return "", nil, err
	}
	return cmdHGetAll + " " + key(op.Table, pk), nil, nil
}

// pkFrom accepts exactly one predicate on the primary key field.
func (a *Adapter) pkFrom(where dbx.Cond) (string, error) {
	if len(where) != 1 {
		return "", fmt.Errorf("redis: predicates must name the %q field only", a.pkField)
	}
	v, ok := where[a.pkField]
	if !ok {
		return "", fmt.Errorf("redis: predicates must name the %q field only", a.pkField)
	}
	return keyText(v)
}

func key(table, pk string) string {
	return table + ":" + pk
}

// keyText renders a primary key Value into its key-segment form.
func keyText(v dbx.Value) (string, error) {
	switch v.Kind() {
	case dbx.KindText:
		s, _ := v.AsText()
		return s, nil
	case dbx.KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10), nil
	}
	return "", fmt.Errorf("%w: primary key must be text or integer, got %s", dbx.ErrTypeMismatch, v.Kind())
}

// encodeField renders a Value as a kind-prefixed string. Nulls keep an
// explicit marker so a stored NULL is distinguishable from a missing field.
func encodeField(v dbx.Value) string {
	switch v.Kind() {
	case dbx.KindNull:
		return "n:"
	case dbx.KindBool:
		b, _ := v.AsBool()
		if b {
			return "b:1"
		}
		return "b:0"
	case dbx.KindInt:
		i, _ := v.AsInt()
		return "i:" + strconv.FormatInt(i, 10)
	case dbx.KindFloat:
		f, _ := v.AsFloat()
		return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
	case dbx.KindText:
		s, _ := v.AsText()
		return "s:" + s
	case dbx.KindBytes:
		b, _ := v.AsBytes()
		return "x:" + hex.EncodeToString(b)
	case dbx.KindTime:
		t, _ := v.AsTime()
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	}
	return "n:"
}

func decodeField(s string) (dbx.Value, error) {
	if len(s) < 2 || s[1] != ':' {
		return dbx.Value{}, fmt.Errorf("%w: malformed stored field %q", dbx.ErrTypeMismatch, s)
	}
	body := s[2:]
	switch s[0] {
	case 'n':
		return dbx.Null(), nil
	case 'b':
		return dbx.Bool(body == "1"), nil
	case 'i':
		i, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return dbx.Value{}, fmt.Errorf("%w: %v", dbx.ErrTypeMismatch, err)
		}
		return dbx.Int(i), nil
	case 'f':
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return dbx.Value{}, fmt.Errorf("%w: %v", dbx.ErrTypeMismatch, err)
		}
		return dbx.Float(f), nil
	case 's':
		return dbx.Text(body), nil
	case 'x':
		b, err := hex.DecodeString(body)
		if err != nil {
			return dbx.Value{}, fmt.Errorf("%w: %v", dbx.ErrTypeMismatch, err)
		}
		return dbx.Bytes(b), nil
	case 't':
		t, err := time.Parse(time.RFC3339Nano, body)
		if err != nil {
			return dbx.Value{}, fmt.Errorf("%w: %v", dbx.ErrTypeMismatch, err)
		}
		return dbx.Time(t), nil
	}
	return dbx.Value{}, fmt.Errorf("%w: unknown field prefix %q", dbx.ErrTypeMismatch, s[:1])
}

// session is one pinned client connection. Writes inside a transaction are
// buffered on a pipeline until Commit; reads always see committed state.
type session struct {
	client *goredis.Client
	pipe   goredis.Pipeliner
}

func (s *session) Exec(ctx context.Context, query string, args []dbx.Value) (int64, error) {
	cmd, arg, err := split(query)
	if err != nil {
		return 0, err
	}
	switch cmd {
	case cmdHSet:
		return s.hset(ctx, arg, args)
	case cmdHSetX:
		n, err := s.client.Exists(ctx, arg).Result()
		if err != nil {
			return 0, classify("exists", err)
		}
		if n == 0 {
			return 0, nil
		}
		return s.hset(ctx, arg, args)
	case cmdDel:
		if s.pipe != nil {
			s.pipe.Del(ctx, arg)
			return 0, nil
		}
		n, err := s.client.Del(ctx, arg).Result()
		if err != nil {
			return 0, classify("del", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("redis: %q is not an executable statement", cmd)
}

func (s *session) hset(ctx context.Context, key string, args []dbx.Value) (int64, error) {
	pairs, err := fieldPairs(args)
	if err != nil {
		return 0, err
	}
	if s.pipe != nil {
		s.pipe.HSet(ctx, key, pairs...)
		return 0, nil
	}
	if err := s.client.HSet(ctx, key, pairs...).Err(); err != nil {
		return 0, classify("hset", err)
	}
	return 1, nil
}

func (s *session) Query(ctx context.Context, query string, args []dbx.Value) ([]*dbx.FieldMap, error) {
	cmd, arg, err := split(query)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case cmdHGetAll:
		row, err := s.readRow(ctx, arg)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		return []*dbx.FieldMap{row}, nil
	case cmdScan:
		return s.scanAll(ctx, arg)
	}
	return nil, fmt.Errorf("redis: %q is not a query statement", cmd)
}

func (s *session) readRow(ctx context.Context, key string) (*dbx.FieldMap, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("hgetall", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	row := dbx.NewFieldMap()
	for _, name := range names {
		v, err := decodeField(fields[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if err := row.Set(name, v); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (s *session) scanAll(ctx context.Context, match string) ([]*dbx.FieldMap, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, classify("scan", err)
	}
	// SCAN order varies run to run; sorting keeps result sets stable.
	sort.Strings(keys)
	var rows []*dbx.FieldMap
	for _, k := range keys {
		row, err := s.readRow(ctx, k)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *session) Begin(context.Context) error {
	if s.pipe != nil {
		return errors.New("redis: transaction already open on this session")
	}
	s.pipe = s.client.TxPipeline()
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if s.pipe == nil {
		return dbx.ErrTxDone
	}
	pipe := s.pipe
	s.pipe = nil
	if _, err := pipe.Exec(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *session) Rollback(context.Context) error {
	if s.pipe == nil {
		return dbx.ErrTxDone
	}
	s.pipe.Discard()
	s.pipe = nil
	return nil
}

func (s *session) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return dbx.NewConnError("ping", err)
	}
	return nil
}

func (s *session) Close() error {
	if s.pipe != nil {
		s.pipe.Discard()
		s.pipe = nil
	}
	return s.client.Close()
}

func split(query string) (cmd, arg string, err error) {
	cmd, arg, ok := strings.Cut(query, " ")
	if !ok || arg == "" {
		return "", "", fmt.Errorf("redis: malformed statement %q", query)
	}
	return cmd, arg, nil
}

// fieldPairs unpacks the alternating name/value Text args EncodeOp emits.
func fieldPairs(args []dbx.Value) ([]any, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("redis: malformed field arguments")
	}
	out := make([]any, 0, len(args))
	for _, v := range args {
		s, err := v.AsText()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, io.EOF) || errors.As(err, &netErr) {
		return dbx.NewConnError(op, err)
	}
	return dbx.NewBackendError(op, err)
}
