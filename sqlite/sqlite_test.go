package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/go-mizu/dbx"
	"github.com/go-mizu/dbx/redis"
	"github.com/go-mizu/dbx/sqlite"
)

type note struct {
	ID        int64     `db:"id"`
	Body      string    `db:"body"`
	Pinned    bool      `db:"pinned"`
	Raw       []byte    `db:"raw"`
	Extra     *string   `db:"extra"`
	CreatedAt time.Time `db:"created_at"`
}

// SQLite stores booleans as integers and these timestamps as text, so both
// columns need field hooks.
func noteCodec() *dbx.Codec {
	return dbx.NewCodec(
		dbx.WithFieldCodec("pinned", dbx.IntBool),
		dbx.WithFieldCodec("created_at", dbx.TextTime),
	)
}

func newStore(t *testing.T) *dbx.Store {
	t.Helper()
	cfg := dbx.Config{
		Database: filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 2,
	}
	pool, err := dbx.NewPool(sqlite.New(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	st := dbx.NewStore(pool, dbx.WithCodec(noteCodec()))
	_, err = st.Exec(context.Background(), `CREATE TABLE notes (
		id INTEGER PRIMARY KEY,
		body TEXT NOT NULL,
		pinned INTEGER NOT NULL,
		raw BLOB,
		extra TEXT,
		created_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	return st
}

func sampleNote(id int64) note {
	return note{
		ID:        id,
		Body:      "hello",
		Pinned:    true,
		Raw:       []byte{0xDE, 0xAD},
		CreatedAt: time.Date(2024, 7, 1, 9, 30, 0, 500000000, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	in := sampleNote(1)
	extra := "spare"
	in.Extra = &extra

	n, err := dbx.Insert(ctx, st, "notes", in)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	out, err := dbx.FindByID[note](ctx, st, "notes", "id", dbx.Int(1))
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNullColumnRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	in := sampleNote(2) // Extra stays nil
	_, err := dbx.Insert(ctx, st, "notes", in)
	require.NoError(t, err)

	out, err := dbx.FindByID[note](ctx, st, "notes", "id", dbx.Int(2))
	require.NoError(t, err)
	require.Nil(t, out.Extra)
}

func TestFindOneNotFound(t *testing.T) {
	st := newStore(t)
	_, err := dbx.FindByID[note](context.Background(), st, "notes", "id", dbx.Int(99))
	require.ErrorIs(t, err, dbx.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	in := sampleNote(3)
	_, err := dbx.Insert(ctx, st, "notes", in)
	require.NoError(t, err)

	in.Body = "edited"
	in.Pinned = false
	n, err := dbx.UpdateByID(ctx, st, "notes", "id", in)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	out, err := dbx.FindByID[note](ctx, st, "notes", "id", dbx.Int(3))
	require.NoError(t, err)
	require.Equal(t, "edited", out.Body)
	require.False(t, out.Pinned)

	n, err = dbx.DeleteByID(ctx, st, "notes", "id", dbx.Int(3))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = dbx.FindByID[note](ctx, st, "notes", "id", dbx.Int(3))
	require.ErrorIs(t, err, dbx.ErrNotFound)
}

func TestTransactionCommit(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx *dbx.Tx) error {
		for id := int64(1); id <= 3; id++ {
			if _, err := dbx.Insert(ctx, tx, "notes", sampleNote(id)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := dbx.FindAll[note](ctx, st, "notes")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestTransactionRollback(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinTx(ctx, func(tx *dbx.Tx) error {
		if _, err := dbx.Insert(ctx, tx, "notes", sampleNote(1)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := dbx.FindAll[note](ctx, st, "notes")
	require.NoError(t, err)
	require.Empty(t, all, "rolled-back insert leaked")
}

func TestBuilderQuery(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		n := sampleNote(id)
		n.Pinned = id%2 == 0
		_, err := dbx.Insert(ctx, st, "notes", n)
		require.NoError(t, err)
	}

	got, err := dbx.All[note](ctx, st.Table("notes").
		Where("pinned = ?", dbx.Int(1)).
		OrderBy("id DESC"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 4, got[0].ID)
}

func TestConcurrentSessions(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	done := make(chan error, 2)
	for w := 0; w < 2; w++ {
		go func(w int) {
			for i := 0; i < 10; i++ {
				id := int64(w*100 + i)
				if _, err := dbx.Insert(ctx, st, "notes", sampleNote(id)); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(w)
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	all, err := dbx.FindAll[note](ctx, st, "notes")
	require.NoError(t, err)
	require.Len(t, all, 20)
}

// The same entity written through two different backends must decode back
// to identical structs. Redis keeps every Value kind natively, SQLite goes
// through the integer/text field hooks; the codec hides the difference.
func TestCrossBackendEquivalence(t *testing.T) {
	ctx := context.Background()

	in := sampleNote(1)
	extra := "spare"
	in.Extra = &extra

	sqliteStore := newStore(t)
	_, err := dbx.Insert(ctx, sqliteStore, "notes", in)
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	rpool, err := dbx.NewPool(redis.New(), dbx.Config{Host: srv.Host(), Port: port, MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rpool.Close() })
	redisStore := dbx.NewStore(rpool)
	_, err = dbx.Insert(ctx, redisStore, "notes", in)
	require.NoError(t, err)

	fromSQLite, err := dbx.FindByID[note](ctx, sqliteStore, "notes", "id", dbx.Int(1))
	require.NoError(t, err)
	fromRedis, err := dbx.FindByID[note](ctx, redisStore, "notes", "id", dbx.Int(1))
	require.NoError(t, err)

	if diff := cmp.Diff(fromSQLite, fromRedis); diff != "" {
		t.Errorf("backend mismatch (-sqlite +redis):\n%s", diff)
	}
	if diff := cmp.Diff(in, fromSQLite); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
