package dbx

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestTxCommitOrdering(t *testing.T) {
	st, ad := newFakeStore(t, 2)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Insert(ctx, tx, "accounts", account{ID: 1, Email: "a@b"}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"begin", "exec", "commit"}
	if got := ad.sessions[0].ops; !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if stats := st.Pool().Stats(); stats.Idle != 1 {
		t.Errorf("idle = %d, session was not returned", stats.Idle)
	}
}

func TestTxStatementsShareOneSession(t *testing.T) {
	st, ad := newFakeStore(t, 4)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := tx.Exec(ctx, "UPDATE t SET n = n + 1 WHERE id = ?", Int(1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}
	if got := ad.openedCount(); got != 1 {
		t.Errorf("opened = %d, want 1 pinned session", got)
	}
}

func TestTxDoneAfterCommit(t *testing.T) {
	st, _ := newFakeStore(t, 2)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := tx.Exec(ctx, "SELECT 1"); !errors.Is(err, ErrTxDone) {
		t.Errorf("Exec err = %v, want ErrTxDone", err)
	}
	if _, err := tx.QueryRows(ctx, "SELECT 1"); !errors.Is(err, ErrTxDone) {
		t.Errorf("QueryRows err = %v, want ErrTxDone", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ErrTxDone) {
		t.Errorf("second Commit err = %v, want ErrTxDone", err)
	}
	if err := tx.Rollback(ctx); !errors.Is(err, ErrTxDone) {
		t.Errorf("Rollback after Commit err = %v, want ErrTxDone", err)
	}
}

func TestWithinTxCommitsOnNil(t *testing.T) {
	st, ad := newFakeStore(t, 2)
	err := st.WithinTx(context.Background(), func(tx *Tx) error {
		_, err := Insert(context.Background(), tx, "accounts", account{ID: 1, Email: "a"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"begin", "exec", "commit"}
	if got := ad.sessions[0].ops; !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	st, ad := newFakeStore(t, 2)
	boom := errors.New("boom")
	err := st.WithinTx(context.Background(), func(tx *Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the callback error", err)
	}
	want := []string{"begin", "rollback"}
	if got := ad.sessions[0].ops; !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if stats := st.Pool().Stats(); stats.Idle != 1 {
		t.Errorf("idle = %d, session was not returned", stats.Idle)
	}
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	st, ad := newFakeStore(t, 2)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("the panic did not propagate")
			}
		}()
		_ = st.WithinTx(context.Background(), func(tx *Tx) error {
			panic("boom")
		})
	}()

	want := []string{"begin", "rollback"}
	if got := ad.sessions[0].ops; !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestTxQueryDecodes(t *testing.T) {
	st, ad := newFakeStore(t, 2)
	ad.rows = []*FieldMap{accountRow(3, "t@x")}
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback(ctx)

	got, err := FindByID[account](ctx, tx, "accounts", "id", Int(3))
	if err != nil || got.Email != "t@x" {
		t.Errorf("got = %+v, err = %v", got, err)
	}
}

func TestTxBuilder(t *testing.T) {
	st, ad := newFakeStore(t, 2)
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx *Tx) error {
		_, err := tx.Table("accounts").
			Update().
			Set("email", Text("n@b")).
			Where("id = ?", Int(1)).
			Exec(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	s := ad.sessions[0]
	if len(s.queries) != 1 || s.queries[0] != "UPDATE accounts SET email = ? WHERE id = ?" {
		t.Errorf("queries = %v", s.queries)
	}
}
